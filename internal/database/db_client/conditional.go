package db_client

import (
	"context"
	"errors"
	"fmt"
)

// ErrConflict marks a conditional write whose precondition no longer held,
// i.e. another transaction changed the row first. RunTx retries it.
var ErrConflict = errors.New("conditional update conflict")

// ExecConditional runs a filtered UPDATE/DELETE and returns how many rows it
// touched. The filter carries the expected prior state.
func ExecConditional(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MustAffectOne is ExecConditional for call sites where anything other than
// exactly one row means the precondition failed.
func MustAffectOne(ctx context.Context, q Querier, op, query string, args ...any) error {
	n, err := ExecConditional(ctx, q, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %d rows affected: %w", op, n, ErrConflict)
	}
	return nil
}
