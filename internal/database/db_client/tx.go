package db_client

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// TxFunc is replayed as a whole on every attempt, so it must not keep state
// between calls.
type TxFunc func(ctx context.Context, tx Querier) error

type Transactor interface {
	RunTx(ctx context.Context, fn TxFunc) error
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterRatio float64
	Deadline    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    1500 * time.Millisecond,
		JitterRatio: 0.3,
		Deadline:    8 * time.Second,
	}
}

// Backoff grows BaseDelay by 2x per retry up to MaxDelay and adds up to
// JitterRatio*BaseDelay of random jitter.
func (p RetryPolicy) Backoff() heimdall.Backoff {
	ratio := min(max(p.JitterRatio, 0), 1)
	// heimdall draws jitter in whole milliseconds and needs a positive bound.
	jitter := max(time.Millisecond, time.Duration(float64(p.BaseDelay)*ratio))
	return heimdall.NewExponentialBackoff(p.BaseDelay, p.MaxDelay, 2, jitter)
}

type TxRunner struct {
	db     *sql.DB
	opts   *sql.TxOptions
	policy RetryPolicy

	backoff heimdall.Backoff
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ Transactor = (*TxRunner)(nil)

func NewTxRunner(db *sql.DB, isolation sql.IsolationLevel, policy RetryPolicy) *TxRunner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &TxRunner{
		db:      db,
		opts:    &sql.TxOptions{Isolation: isolation},
		policy:  policy,
		backoff: policy.Backoff(),
		sleep:   sleepCtx,
	}
}

// RunTx executes fn in a transaction, retrying transient failures with
// exponential backoff until MaxAttempts or Deadline is reached.
func (r *TxRunner) RunTx(ctx context.Context, fn TxFunc) error {
	startedAt := time.Now()
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if r.policy.Deadline > 0 && attempt > 1 && time.Since(startedAt) > r.policy.Deadline {
			break
		}

		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= r.policy.MaxAttempts {
			return err
		}

		delay := r.backoff.Next(attempt - 1)
		if r.policy.Deadline > 0 && time.Since(startedAt)+delay > r.policy.Deadline {
			return err
		}

		zap.L().Debug("tx.retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (r *TxRunner) runOnce(ctx context.Context, fn TxFunc) error {
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// IsRetryable classifies err as a transient transaction failure: write
// conflicts, serialization failures, deadlocks, lock timeouts and broken
// connections. Business errors and context cancellation are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrConflict) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ParseIsolation maps the config spelling to a database/sql level.
func ParseIsolation(s string) (sql.IsolationLevel, error) {
	switch s {
	case "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable", "":
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
