package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type route func(ctx context.Context, cc *ConnContext, body json.RawMessage) (any, error)

// Router turns inbound frames into auction service calls. Bodies are decoded
// strictly and validated before the call, and every call runs under timeout.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]route
	validate *validator.Validate
	timeout  time.Duration
}

func NewRouter(timeout time.Duration) *Router {
	return &Router{
		routes:   make(map[string]route),
		validate: validator.New(),
		timeout:  timeout,
	}
}

// Handle binds event to h. Req must be a struct; its validate tags are
// checked after decoding. Binding the same event twice panics.
func Handle[Req any, Res any](
	r *Router,
	event string,
	h func(ctx context.Context, cc *ConnContext, req Req) (Res, error),
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.routes[event]; dup {
		panic("ws router: duplicate event " + event)
	}

	r.routes[event] = func(ctx context.Context, cc *ConnContext, body json.RawMessage) (any, error) {
		var req Req
		if len(body) > 0 && !bytes.Equal(body, []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				return nil, fmt.Errorf("%w: %s", errBadFrame, err.Error())
			}
		}
		if err := r.validate.Struct(req); err != nil {
			return nil, fmt.Errorf("%w: %s", errBadFrame, err.Error())
		}
		return h(ctx, cc, req)
	}
}

// Events lists the bound events in name order.
func (r *Router) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.routes))
}

// serve answers one inbound frame. event is empty when the frame is not an
// envelope at all.
func (r *Router) serve(cc *ConnContext, frame []byte) (event string, res any, err error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("%w: malformed frame", errBadFrame)
	}

	r.mu.RLock()
	h, ok := r.routes[env.Event]
	r.mu.RUnlock()
	if !ok {
		return env.Event, nil, fmt.Errorf("%w: unknown event %q, want one of %s",
			errBadFrame, env.Event, strings.Join(r.Events(), ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	res, err = h(ctx, cc, env.Body)
	return env.Event, res, err
}
