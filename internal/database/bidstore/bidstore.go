package bidstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"

	"github.com/google/uuid"
)

// Ranking order shared by every read: highest amount first, earliest bid wins ties.
const rankingOrder = `ORDER BY amount DESC, created_at ASC, id ASC`

const bidColumns = `id, auction_id, bidder_id, amount, status, created_at`

type Store struct{}

func New() *Store { return &Store{} }

type UpsertIn struct {
	AuctionID string
	BidderID  int64
	Amount    int64
	Now       time.Time
}

// Upsert creates the bidder's PENDING bid or adds amount to the existing one
// in a single statement. The partial unique index on (auction_id, bidder_id)
// for PENDING rows makes concurrent top-ups serialize on that row.
func (s *Store) Upsert(ctx context.Context, q db_client.Querier, in UpsertIn) (string, error) {
	const ups = `
	  INSERT INTO bids (id, auction_id, bidder_id, amount, status, created_at)
	       VALUES ($1, $2, $3, $4, 'PENDING', $5)
	  ON CONFLICT (auction_id, bidder_id) WHERE status = 'PENDING'
	  DO UPDATE SET amount = bids.amount + EXCLUDED.amount
	  RETURNING id`

	var id string
	err := q.QueryRowContext(ctx, ups,
		uuid.NewString(), in.AuctionID, in.BidderID, in.Amount, models.DBTime(in.Now),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert bid %s/%d: %w", in.AuctionID, in.BidderID, err)
	}
	return id, nil
}

// FetchUserBid returns the bidder's PENDING bid or nil.
func (s *Store) FetchUserBid(ctx context.Context, q db_client.Querier, auctionID string, bidderID int64) (*models.Bid, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 AND bidder_id = $2 AND status = 'PENDING'`,
		auctionID, bidderID)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch bid %s/%d: %w", auctionID, bidderID, err)
	}
	return b, nil
}

// FetchTop returns up to limit PENDING bids in ranking order.
func (s *Store) FetchTop(ctx context.Context, q db_client.Querier, auctionID string, limit int) ([]models.Bid, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 AND status = 'PENDING' `+rankingOrder+` LIMIT $2`,
		auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch top bids %s: %w", auctionID, err)
	}
	defer rows.Close()

	list := make([]models.Bid, 0, limit)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *b)
	}
	return list, rows.Err()
}

// LowestWinning returns the bid the bidder has to match to stay among the
// winners, or nil when there is no floor. See Floor for the rules.
func (s *Store) LowestWinning(ctx context.Context, q db_client.Querier, auctionID string, winnersPerRound int, bidderID int64) (*models.Bid, error) {
	top, err := s.FetchTop(ctx, q, auctionID, winnersPerRound)
	if err != nil {
		return nil, err
	}
	return Floor(top, winnersPerRound, bidderID), nil
}

// Floor picks the floor from the current top bids (already ranked):
//   - no bids, or the bidder leads: no floor
//   - bidder inside the top: the bid directly ahead of theirs
//   - bidder outside a full top: the last winning bid
//   - bidder outside a top that still has free places: no floor
//
// Winners are usually few, so working on the loaded slice beats a
// count-and-offset query.
func Floor(top []models.Bid, winnersPerRound int, bidderID int64) *models.Bid {
	if winnersPerRound <= 0 || len(top) == 0 {
		return nil
	}
	for i := range top {
		if top[i].BidderID != bidderID {
			continue
		}
		if i == 0 {
			return nil
		}
		b := top[i-1]
		return &b
	}
	if len(top) < winnersPerRound {
		return nil
	}
	b := top[len(top)-1]
	return &b
}

// Rank is the 1-based position of the bid among the auction's PENDING bids.
func (s *Store) Rank(ctx context.Context, q db_client.Querier, bid *models.Bid) (int, error) {
	const cnt = `
	  SELECT count(*)
	    FROM bids
	   WHERE auction_id = $1
	     AND status     = 'PENDING'
	     AND (amount > $2 OR (amount = $2 AND created_at < $3))`
	var ahead int
	if err := q.QueryRowContext(ctx, cnt, bid.AuctionID, bid.Amount, bid.CreatedAt).Scan(&ahead); err != nil {
		return 0, fmt.Errorf("rank bid %s: %w", bid.ID, err)
	}
	return ahead + 1, nil
}

func (s *Store) CountPending(ctx context.Context, q db_client.Querier, auctionID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT count(*) FROM bids WHERE auction_id = $1 AND status = 'PENDING'`, auctionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending bids %s: %w", auctionID, err)
	}
	return n, nil
}

// Close flips one PENDING bid to CLOSED. A bid that is no longer PENDING is a conflict.
func (s *Store) Close(ctx context.Context, q db_client.Querier, bidID string) error {
	return db_client.MustAffectOne(ctx, q, "close bid "+bidID,
		`UPDATE bids SET status = 'CLOSED' WHERE id = $1 AND status = 'PENDING'`, bidID)
}

// CloseAllPending closes every remaining PENDING bid of the auction.
func (s *Store) CloseAllPending(ctx context.Context, q db_client.Querier, auctionID string) (int64, error) {
	n, err := db_client.ExecConditional(ctx, q,
		`UPDATE bids SET status = 'CLOSED' WHERE auction_id = $1 AND status = 'PENDING'`, auctionID)
	if err != nil {
		return 0, fmt.Errorf("close pending bids %s: %w", auctionID, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBid(sc scanner) (*models.Bid, error) {
	b := &models.Bid{}
	var status string
	if err := sc.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &status, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Status = models.BidStatus(status)
	return b, nil
}
