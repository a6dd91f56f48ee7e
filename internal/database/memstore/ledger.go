package memstore

import (
	"context"
	"fmt"

	"giftauction/internal/database/db_client"
	"giftauction/internal/database/ledger"
	"giftauction/internal/models"
)

type Ledger struct{ db *DB }

func (l *Ledger) InitialBalance() int64 { return l.db.initialBalance }

func (l *Ledger) Create(_ context.Context, q db_client.Querier, userID int64) error {
	return l.db.do(q, func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			st.users[userID] = models.User{UserID: userID, Balance: l.db.initialBalance, CreatedAt: models.DBTime(l.db.now())}
		}
		return nil
	})
}

func (l *Ledger) Restore(_ context.Context, q db_client.Querier, userID int64) error {
	return l.db.do(q, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return ledger.ErrUserNotFound
		}
		u.Balance = l.db.initialBalance
		st.users[userID] = u
		return nil
	})
}

func (l *Ledger) FetchByID(_ context.Context, q db_client.Querier, userID int64) (*models.User, error) {
	var out *models.User
	err := l.db.do(q, func(st *state) error {
		if u, ok := st.users[userID]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (l *Ledger) Decrease(_ context.Context, q db_client.Querier, userID, amount int64) error {
	return l.db.do(q, func(st *state) error {
		u, ok := st.users[userID]
		if !ok || u.Balance < amount {
			return ledger.ErrInsufficientFunds
		}
		u.Balance -= amount
		st.users[userID] = u
		return nil
	})
}

func (l *Ledger) Increase(_ context.Context, q db_client.Querier, userID, amount int64) error {
	return l.db.do(q, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return ledger.ErrUserNotFound
		}
		u.Balance += amount
		st.users[userID] = u
		return nil
	})
}

func (l *Ledger) RefundPending(_ context.Context, q db_client.Querier, auctionID string) (int64, error) {
	var n int64
	err := l.db.do(q, func(st *state) error {
		for _, b := range st.bids {
			if b.AuctionID != auctionID || b.Status != models.BidPending {
				continue
			}
			u, ok := st.users[b.BidderID]
			if !ok {
				return fmt.Errorf("refund bid %s: bidder %d missing", b.ID, b.BidderID)
			}
			u.Balance += b.Amount
			st.users[b.BidderID] = u
			n++
		}
		return nil
	})
	return n, err
}
