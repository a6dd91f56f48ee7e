package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"giftauction/internal/database/bidstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/models"

	"github.com/google/uuid"
)

type Bids struct{ db *DB }

// rankCmp is amount DESC, created_at ASC, id ASC.
func rankCmp(a, b models.Bid) int {
	if a.Amount != b.Amount {
		if a.Amount > b.Amount {
			return -1
		}
		return 1
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func pending(st *state, auctionID string) []models.Bid {
	var list []models.Bid
	for _, b := range st.bids {
		if b.AuctionID == auctionID && b.Status == models.BidPending {
			list = append(list, b)
		}
	}
	slices.SortFunc(list, rankCmp)
	return list
}

func (s *Bids) Upsert(_ context.Context, q db_client.Querier, in bidstore.UpsertIn) (string, error) {
	if in.Amount <= 0 {
		return "", fmt.Errorf("upsert bid %s/%d: amount must be positive", in.AuctionID, in.BidderID)
	}
	var id string
	err := s.db.do(q, func(st *state) error {
		for _, b := range st.bids {
			if b.AuctionID == in.AuctionID && b.BidderID == in.BidderID && b.Status == models.BidPending {
				b.Amount += in.Amount
				st.bids[b.ID] = b
				id = b.ID
				return nil
			}
		}
		id = uuid.NewString()
		st.bids[id] = models.Bid{
			ID: id, AuctionID: in.AuctionID, BidderID: in.BidderID, Amount: in.Amount,
			Status: models.BidPending, CreatedAt: models.DBTime(in.Now),
		}
		return nil
	})
	return id, err
}

func (s *Bids) FetchUserBid(_ context.Context, q db_client.Querier, auctionID string, bidderID int64) (*models.Bid, error) {
	var out *models.Bid
	err := s.db.do(q, func(st *state) error {
		for _, b := range st.bids {
			if b.AuctionID == auctionID && b.BidderID == bidderID && b.Status == models.BidPending {
				out = &b
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *Bids) FetchTop(_ context.Context, q db_client.Querier, auctionID string, limit int) ([]models.Bid, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []models.Bid
	err := s.db.do(q, func(st *state) error {
		list := pending(st, auctionID)
		out = list[:min(limit, len(list))]
		return nil
	})
	return out, err
}

func (s *Bids) LowestWinning(ctx context.Context, q db_client.Querier, auctionID string, winnersPerRound int, bidderID int64) (*models.Bid, error) {
	top, err := s.FetchTop(ctx, q, auctionID, winnersPerRound)
	if err != nil {
		return nil, err
	}
	return bidstore.Floor(top, winnersPerRound, bidderID), nil
}

func (s *Bids) Rank(_ context.Context, q db_client.Querier, bid *models.Bid) (int, error) {
	ahead := 0
	err := s.db.do(q, func(st *state) error {
		for _, b := range st.bids {
			if b.AuctionID != bid.AuctionID || b.Status != models.BidPending {
				continue
			}
			if b.Ahead(bid) {
				ahead++
			}
		}
		return nil
	})
	return ahead + 1, err
}

func (s *Bids) CountPending(_ context.Context, q db_client.Querier, auctionID string) (int, error) {
	var n int
	err := s.db.do(q, func(st *state) error {
		n = len(pending(st, auctionID))
		return nil
	})
	return n, err
}

func (s *Bids) Close(_ context.Context, q db_client.Querier, bidID string) error {
	return s.db.do(q, func(st *state) error {
		b, ok := st.bids[bidID]
		if !ok || b.Status != models.BidPending {
			return fmt.Errorf("close bid %s: %w", bidID, db_client.ErrConflict)
		}
		b.Status = models.BidClosed
		st.bids[bidID] = b
		return nil
	})
}

func (s *Bids) CloseAllPending(_ context.Context, q db_client.Querier, auctionID string) (int64, error) {
	var n int64
	err := s.db.do(q, func(st *state) error {
		for _, b := range pending(st, auctionID) {
			b.Status = models.BidClosed
			st.bids[b.ID] = b
			n++
		}
		return nil
	})
	return n, err
}
