// Package memstore keeps every table in process memory. It mirrors the SQL
// stores statement by statement, including their conditional-update results,
// and runs transactions one at a time under a single mutex with rollback by
// snapshot. Selected with STORE_DRIVER=memory and used as the engine's test
// double.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"
)

type state struct {
	users     map[int64]models.User
	gifts     map[string]models.Gift
	auctions  map[string]models.Auction
	anti      map[string]models.AntiSniping
	bids      map[string]models.Bid
	userGifts []models.UserGift
}

// clone is shallow per row. Rows are replaced, never mutated in place, so
// that is enough to roll back.
func (s *state) clone() state {
	return state{
		users:     maps.Clone(s.users),
		gifts:     maps.Clone(s.gifts),
		auctions:  maps.Clone(s.auctions),
		anti:      maps.Clone(s.anti),
		bids:      maps.Clone(s.bids),
		userGifts: slices.Clone(s.userGifts),
	}
}

type DB struct {
	mu             sync.Mutex
	st             state
	initialBalance int64
	now            func() time.Time
}

var _ db_client.Transactor = (*DB)(nil)

func New(initialBalance int64) *DB {
	return &DB{
		st: state{
			users:    map[int64]models.User{},
			gifts:    map[string]models.Gift{},
			auctions: map[string]models.Auction{},
			anti:     map[string]models.AntiSniping{},
			bids:     map[string]models.Bid{},
		},
		initialBalance: initialBalance,
		now:            time.Now,
	}
}

// memTx is the handle passed to TxFuncs. Its Querier is nil: memstore never
// runs SQL, the handle only proves the caller already holds the lock.
type memTx struct {
	db_client.Querier
	db *DB
}

// RunTx runs fn with the store locked. Any error restores the state fn saw
// on entry. Transactions never overlap, so there is nothing to retry.
func (db *DB) RunTx(ctx context.Context, fn db_client.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.st.clone()
	if err := fn(ctx, &memTx{db: db}); err != nil {
		db.st = snap
		return err
	}
	return nil
}

// do runs f against the state. Calls made with a memTx are already under
// the lock; any other handle (nil included) takes it for this one call.
func (db *DB) do(q db_client.Querier, f func(st *state) error) error {
	if tx, ok := q.(*memTx); ok && tx.db == db {
		return f(&db.st)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return f(&db.st)
}

func (db *DB) Ledger() *Ledger     { return &Ledger{db: db} }
func (db *DB) Bids() *Bids         { return &Bids{db: db} }
func (db *DB) Auctions() *Auctions { return &Auctions{db: db} }
func (db *DB) Gifts() *Gifts       { return &Gifts{db: db} }

// Snapshot is a copy of every row, for assertions in tests.
type Snapshot struct {
	Users     []models.User
	Auctions  []models.Auction
	Bids      []models.Bid
	UserGifts []models.UserGift
}

func (db *DB) Snapshot() Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Snapshot{
		Users:     slices.Collect(maps.Values(db.st.users)),
		Auctions:  slices.Collect(maps.Values(db.st.auctions)),
		Bids:      slices.Collect(maps.Values(db.st.bids)),
		UserGifts: slices.Clone(db.st.userGifts),
	}
}
