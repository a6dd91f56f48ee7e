// Package ledger holds user balances. Every balance change is a single
// conditional UPDATE so concurrent bids and refunds never lose writes.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Ledger struct {
	initialBalance int64
}

func New(initialBalance int64) *Ledger {
	return &Ledger{initialBalance: initialBalance}
}

func (l *Ledger) InitialBalance() int64 { return l.initialBalance }

// Create registers the user with the initial balance; existing users are left untouched.
func (l *Ledger) Create(ctx context.Context, q db_client.Querier, userID int64) error {
	const ins = `
	  INSERT INTO users (user_id, balance)
	       VALUES ($1, $2)
	  ON CONFLICT (user_id) DO NOTHING`
	if _, err := q.ExecContext(ctx, ins, userID, l.initialBalance); err != nil {
		return fmt.Errorf("create user %d: %w", userID, err)
	}
	return nil
}

// Restore resets the balance back to the initial amount.
func (l *Ledger) Restore(ctx context.Context, q db_client.Querier, userID int64) error {
	n, err := db_client.ExecConditional(ctx, q,
		`UPDATE users SET balance = $2 WHERE user_id = $1`, userID, l.initialBalance)
	if err != nil {
		return fmt.Errorf("restore balance %d: %w", userID, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (l *Ledger) FetchByID(ctx context.Context, q db_client.Querier, userID int64) (*models.User, error) {
	u := &models.User{}
	err := q.QueryRowContext(ctx,
		`SELECT user_id, balance, created_at FROM users WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.Balance, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user %d: %w", userID, err)
	}
	return u, nil
}

// Decrease subtracts amount only if the balance covers it.
func (l *Ledger) Decrease(ctx context.Context, q db_client.Querier, userID, amount int64) error {
	n, err := db_client.ExecConditional(ctx, q,
		`UPDATE users SET balance = balance - $2 WHERE user_id = $1 AND balance >= $2`, userID, amount)
	if err != nil {
		return fmt.Errorf("decrease balance %d: %w", userID, err)
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (l *Ledger) Increase(ctx context.Context, q db_client.Querier, userID, amount int64) error {
	n, err := db_client.ExecConditional(ctx, q,
		`UPDATE users SET balance = balance + $2 WHERE user_id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("increase balance %d: %w", userID, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RefundPending credits every bidder holding a PENDING bid on the auction
// with that bid's amount. Callers close winning bids first.
func (l *Ledger) RefundPending(ctx context.Context, q db_client.Querier, auctionID string) (int64, error) {
	const upd = `
	  UPDATE users u
	     SET balance = u.balance + b.amount
	    FROM bids b
	   WHERE b.auction_id = $1
	     AND b.status     = 'PENDING'
	     AND u.user_id    = b.bidder_id`
	n, err := db_client.ExecConditional(ctx, q, upd, auctionID)
	if err != nil {
		return 0, fmt.Errorf("refund pending bids of %s: %w", auctionID, err)
	}
	return n, nil
}
