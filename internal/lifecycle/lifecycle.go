// Package lifecycle owns the process's shutdown callbacks.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Hook func(ctx context.Context) error

type entry struct {
	name string
	fn   Hook
}

// Lifecycle runs registered hooks in reverse registration order, so
// something started later is stopped before what it depends on.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []entry
	stopped bool
}

func New() *Lifecycle { return &Lifecycle{} }

func (l *Lifecycle) OnStop(name string, fn Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, entry{name: name, fn: fn})
}

// Stop runs every hook once, even when earlier ones fail, and returns the
// joined errors. Later calls are no-ops.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	hooks := l.hooks
	l.hooks = nil
	l.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			zap.L().Error("lifecycle.stop_failed", zap.String("hook", h.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		zap.L().Debug("lifecycle.stopped", zap.String("hook", h.name))
	}
	return errors.Join(errs...)
}
