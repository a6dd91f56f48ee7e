package main

import (
	"context"
	"fmt"

	"giftauction/internal/config"
	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/bidstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/database/giftstore"
	"giftauction/internal/database/ledger"
	"giftauction/internal/database/memstore"
	"giftauction/internal/lifecycle"
	"giftauction/internal/models"
	"giftauction/internal/services/auction"
	"giftauction/internal/services/gift"
	"giftauction/internal/services/user"
	"giftauction/internal/worker/roundreaper"

	"go.uber.org/zap"
)

type giftCatalog interface {
	gift.GiftStore
	Upsert(ctx context.Context, q db_client.Querier, id, name string) error
	FetchByID(ctx context.Context, q db_client.Querier, id string) (*models.Gift, error)
}

// backend is one storage driver seen through every consumer's store set.
type backend struct {
	tx       db_client.Transactor
	auctions auction.Stores
	reaper   roundreaper.Stores
	users    user.Ledger
	gifts    giftCatalog
}

func openBackend(cfg *config.Config, lc *lifecycle.Lifecycle) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		zap.L().Warn("store.memory", zap.String("note", "state is lost on exit"))
		return memoryBackend(memstore.New(cfg.InitialBalance)), nil
	case config.StoreDriverPostgres:
		return postgresBackend(cfg, lc)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func memoryBackend(db *memstore.DB) *backend {
	l, b, a, g := db.Ledger(), db.Bids(), db.Auctions(), db.Gifts()
	return &backend{
		tx:       db,
		auctions: auction.Stores{Ledger: l, Bids: b, Auctions: a, Gifts: g},
		reaper:   roundreaper.Stores{Ledger: l, Bids: b, Auctions: a, Gifts: g},
		users:    l,
		gifts:    g,
	}
}

func postgresBackend(cfg *config.Config, lc *lifecycle.Lifecycle) (*backend, error) {
	iso, err := db_client.ParseIsolation(cfg.TxIsolation)
	if err != nil {
		return nil, err
	}
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		return nil, fmt.Errorf("pg open: %w", err)
	}
	lc.OnStop("postgres", func(context.Context) error { return pgDb.Close() })

	runner := db_client.NewTxRunner(pgDb, iso, db_client.RetryPolicy{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseDelay:   cfg.TxBaseDelay,
		MaxDelay:    cfg.TxMaxDelay,
		JitterRatio: cfg.TxJitterRatio,
		Deadline:    cfg.TxDeadline,
	})

	l, b, a, g := ledger.New(cfg.InitialBalance), bidstore.New(), auctionstore.New(), giftstore.New()
	return &backend{
		tx:       runner,
		auctions: auction.Stores{Ledger: l, Bids: b, Auctions: a, Gifts: g},
		reaper:   roundreaper.Stores{Ledger: l, Bids: b, Auctions: a, Gifts: g},
		users:    l,
		gifts:    g,
	}, nil
}

// seedGifts upserts the catalog rows named on the command line.
func (b *backend) seedGifts(ctx context.Context, seeds []giftSeed) error {
	if len(seeds) == 0 {
		return nil
	}
	return b.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		for _, s := range seeds {
			if err := b.gifts.Upsert(ctx, q, s.ID, s.Name); err != nil {
				return fmt.Errorf("gift %s: %w", s.ID, err)
			}
		}
		return nil
	})
}
