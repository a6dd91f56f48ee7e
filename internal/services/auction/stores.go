package auction

import (
	"context"
	"time"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/bidstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/models"
)

// The engine only sees these method sets. The Postgres stores and memstore
// both satisfy them.

type Ledger interface {
	FetchByID(ctx context.Context, q db_client.Querier, userID int64) (*models.User, error)
	Decrease(ctx context.Context, q db_client.Querier, userID, amount int64) error
}

type BidStore interface {
	Upsert(ctx context.Context, q db_client.Querier, in bidstore.UpsertIn) (string, error)
	FetchUserBid(ctx context.Context, q db_client.Querier, auctionID string, bidderID int64) (*models.Bid, error)
	FetchTop(ctx context.Context, q db_client.Querier, auctionID string, limit int) ([]models.Bid, error)
	LowestWinning(ctx context.Context, q db_client.Querier, auctionID string, winnersPerRound int, bidderID int64) (*models.Bid, error)
	Rank(ctx context.Context, q db_client.Querier, bid *models.Bid) (int, error)
}

type AuctionStore interface {
	Create(ctx context.Context, q db_client.Querier, in auctionstore.CreateIn) (string, error)
	HasNonFinished(ctx context.Context, q db_client.Querier, giftID string) (bool, error)
	FetchByID(ctx context.Context, q db_client.Querier, id string) (*models.Auction, error)
	List(ctx context.Context, q db_client.Querier, status string, limit, offset int) ([]models.Auction, error)
	FetchAntiSniping(ctx context.Context, q db_client.Querier, auctionID string) (*models.AntiSniping, error)
	Arm(ctx context.Context, q db_client.Querier, auctionID string, expiresAt time.Time) (bool, error)
	ExtendRound(ctx context.Context, q db_client.Querier, auctionID string, current, next time.Time) (bool, error)
	IncrementExtension(ctx context.Context, q db_client.Querier, auctionID string) error
}

type GiftStore interface {
	FetchByID(ctx context.Context, q db_client.Querier, id string) (*models.Gift, error)
}

type Stores struct {
	Ledger   Ledger
	Bids     BidStore
	Auctions AuctionStore
	Gifts    GiftStore
}
