// Package roundreaper settles auction rounds whose deadline has passed.
package roundreaper

import (
	"context"
	"time"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/database/giftstore"
	"giftauction/internal/models"
	"giftauction/internal/redis/events"
	"giftauction/internal/redis/roundlock"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Ledger interface {
	RefundPending(ctx context.Context, q db_client.Querier, auctionID string) (int64, error)
}

type BidStore interface {
	FetchTop(ctx context.Context, q db_client.Querier, auctionID string, limit int) ([]models.Bid, error)
	CountPending(ctx context.Context, q db_client.Querier, auctionID string) (int, error)
	Close(ctx context.Context, q db_client.Querier, bidID string) error
	CloseAllPending(ctx context.Context, q db_client.Querier, auctionID string) (int64, error)
}

type AuctionStore interface {
	FetchByID(ctx context.Context, q db_client.Querier, id string) (*models.Auction, error)
	FetchExpired(ctx context.Context, q db_client.Querier, now time.Time) ([]models.Auction, error)
	AdvanceRound(ctx context.Context, q db_client.Querier, in auctionstore.AdvanceIn) error
	Finish(ctx context.Context, q db_client.Querier, auctionID string, fromRound int) error
}

type GiftStore interface {
	ReserveNumbers(ctx context.Context, q db_client.Querier, giftID string, n int) (int64, error)
	Allocate(ctx context.Context, q db_client.Querier, giftID string, allocs []giftstore.Allocation, now time.Time) error
}

type Stores struct {
	Ledger   Ledger
	Bids     BidStore
	Auctions AuctionStore
	Gifts    GiftStore
}

type Config struct {
	PollInterval time.Duration
	Concurrency  int
}

type Reaper struct {
	tx       db_client.Transactor
	ledger   Ledger
	bids     BidStore
	auctions AuctionStore
	gifts    GiftStore
	locker   roundlock.Locker
	events   events.Publisher
	cfg      Config
	now      func() time.Time
}

type Option func(*Reaper)

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

func New(tx db_client.Transactor, st Stores, locker roundlock.Locker, pub events.Publisher, cfg Config, opts ...Option) *Reaper {
	if locker == nil {
		locker = roundlock.Nop{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	r := &Reaper{
		tx:       tx,
		ledger:   st.Ledger,
		bids:     st.Bids,
		auctions: st.Auctions,
		gifts:    st.Gifts,
		locker:   locker,
		events:   pub,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run polls until ctx is canceled. An iteration in flight is allowed to
// finish; settlements run on a detached context so a shutdown never aborts
// a transaction halfway through its retries.
func (r *Reaper) Run(ctx context.Context) {
	zap.L().Info("reaper.started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("concurrency", r.cfg.Concurrency))

	tk := time.NewTicker(r.cfg.PollInterval)
	defer tk.Stop()
	for {
		r.Tick(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			zap.L().Info("reaper.stopped")
			return
		case <-tk.C:
		}
	}
}

// Tick settles every currently expired round and reports how many settled.
// Failures are logged and picked up again by the next tick, because the
// failed auction's expiry is still in the past.
func (r *Reaper) Tick(ctx context.Context) int {
	var expired []models.Auction
	err := r.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		var err error
		expired, err = r.auctions.FetchExpired(ctx, q, r.now())
		return err
	})
	if err != nil {
		zap.L().Error("reaper.fetch_expired_failed", zap.Error(err))
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	settled := make([]bool, len(expired))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, a := range expired {
		g.Go(func() error {
			release, ok := r.locker.TryLock(ctx, a.ID)
			if !ok {
				zap.L().Debug("reaper.locked_elsewhere", zap.String("auction_id", a.ID))
				return nil
			}
			defer release()

			res, err := r.SettleRound(ctx, a.ID)
			if err != nil {
				zap.L().Error("reaper.settle_failed",
					zap.String("auction_id", a.ID), zap.Int("round", a.Round), zap.Error(err))
				return nil
			}
			settled[i] = !res.Skipped
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range settled {
		if ok {
			n++
		}
	}
	return n
}
