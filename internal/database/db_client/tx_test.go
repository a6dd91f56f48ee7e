package db_client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, policy RetryPolicy) (*TxRunner, sqlmock.Sqlmock, *[]time.Duration) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewTxRunner(db, sql.LevelDefault, policy)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	r.backoff = backoffFunc(func(retry int) time.Duration { return policy.BaseDelay << retry })
	return r, mock, &slept
}

type backoffFunc func(retry int) time.Duration

func (f backoffFunc) Next(retry int) time.Duration { return f(retry) }

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	r, mock, _ := newTestRunner(t, DefaultRetryPolicy())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := r.RunTx(context.Background(), func(ctx context.Context, tx Querier) error {
		_, err := tx.ExecContext(ctx, `UPDATE users SET balance = 1`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTx_RollsBackBusinessError(t *testing.T) {
	r, mock, slept := newTestRunner(t, DefaultRetryPolicy())
	errBusiness := errors.New("too small")

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := r.RunTx(context.Background(), func(ctx context.Context, tx Querier) error {
		calls++
		return errBusiness
	})
	require.ErrorIs(t, err, errBusiness)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTx_RetriesSerializationFailure(t *testing.T) {
	r, mock, slept := newTestRunner(t, DefaultRetryPolicy())

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := r.RunTx(context.Background(), func(ctx context.Context, tx Querier) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, *slept)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTx_RetriesConflictUntilAttemptsExhausted(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 2
	r, mock, _ := newTestRunner(t, policy)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := r.RunTx(context.Background(), func(ctx context.Context, tx Querier) error {
		calls++
		return fmt.Errorf("extend round: %w", ErrConflict)
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 2, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTx_CommitFailureIsRetried(t *testing.T) {
	r, mock, _ := newTestRunner(t, DefaultRetryPolicy())

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := r.RunTx(context.Background(), func(ctx context.Context, tx Querier) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunTx_StopsAtDeadline(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 10
	policy.BaseDelay = time.Second
	policy.Deadline = 500 * time.Millisecond
	r, mock, slept := newTestRunner(t, policy)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := r.RunTx(context.Background(), func(ctx context.Context, tx Querier) error {
		return &pgconn.PgError{Code: "40P01"}
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Empty(t, *slept)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 50 * time.Millisecond, MaxDelay: 300 * time.Millisecond, JitterRatio: 0.5}
	b := p.Backoff()
	const jitter = 25 * time.Millisecond

	for range 20 {
		assert.LessOrEqual(t, b.Next(0), p.BaseDelay+jitter)
		assert.GreaterOrEqual(t, b.Next(1), p.BaseDelay)
		for _, retry := range []int{3, 10, 60} {
			d := b.Next(retry)
			assert.GreaterOrEqual(t, d, p.MaxDelay, "retry %d", retry)
			assert.LessOrEqual(t, d, p.MaxDelay+jitter, "retry %d", retry)
		}
	}

	// zero ratio still yields a usable backoff
	p.JitterRatio = 0
	d := p.Backoff().Next(60)
	assert.GreaterOrEqual(t, d, p.MaxDelay)
	assert.Less(t, d, p.MaxDelay+time.Millisecond)
}

func TestNewTxRunner_UsesPolicyBackoff(t *testing.T) {
	r := NewTxRunner(nil, sql.LevelDefault, RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond})
	require.NotNil(t, r.backoff)
	assert.Equal(t, 1, r.policy.MaxAttempts)
	d := r.backoff.Next(20)
	assert.GreaterOrEqual(t, d, 40*time.Millisecond)
	assert.Less(t, d, 41*time.Millisecond)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "40P01"}), want: true},
		{name: "lock_not_available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "unique_violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "conflict", err: fmt.Errorf("advance: %w", ErrConflict), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "business", err: errors.New("insufficient funds"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "auctions_one_active_per_gift"})
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "auctions_one_active_per_gift"))
	assert.False(t, IsUniqueViolation(err, "other"))
	assert.False(t, IsUniqueViolation(errors.New("x"), ""))
}

func TestMustAffectOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE auctions`).WithArgs("a1", 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE auctions`).WithArgs("a1", 3).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, MustAffectOne(context.Background(), db, "advance", `UPDATE auctions SET round = round + 1 WHERE id = $1 AND round = $2`, "a1", 3))
	err = MustAffectOne(context.Background(), db, "advance", `UPDATE auctions SET round = round + 1 WHERE id = $1 AND round = $2`, "a1", 3)
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	stmts := Statements()
	require.NotEmpty(t, stmts)
	for _, s := range stmts {
		mock.ExpectExec(s).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, ApplySchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseIsolation(t *testing.T) {
	lvl, err := ParseIsolation("repeatable_read")
	require.NoError(t, err)
	assert.Equal(t, sql.LevelRepeatableRead, lvl)

	_, err = ParseIsolation("snapshot")
	require.Error(t, err)
}
