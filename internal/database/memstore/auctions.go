package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/models"

	"github.com/google/uuid"
)

type Auctions struct{ db *DB }

func (s *Auctions) Create(_ context.Context, q db_client.Querier, in auctionstore.CreateIn) (string, error) {
	id := uuid.NewString()
	err := s.db.do(q, func(st *state) error {
		if _, ok := st.gifts[in.GiftID]; !ok {
			return fmt.Errorf("insert auction: gift %s missing", in.GiftID)
		}
		for _, a := range st.auctions {
			if a.GiftID == in.GiftID && a.Status != models.AuctionFinished {
				return auctionstore.ErrAnotherActive
			}
		}
		st.auctions[id] = models.Auction{
			ID: id, GiftID: in.GiftID, Supply: in.Supply, WinnersPerRound: in.WinnersPerRound,
			RoundDurationSec: in.RoundDurationSec, Status: models.AuctionScheduled, CreatedAt: models.DBTime(in.Now),
		}
		if in.AntiSniping != nil {
			st.anti[id] = models.AntiSniping{
				AuctionID:            id,
				ExtensionDurationSec: in.AntiSniping.ExtensionDurationSec,
				ThresholdSec:         in.AntiSniping.ThresholdSec,
				MaxExtensions:        in.AntiSniping.MaxExtensions,
				Enabled:              true,
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Auctions) HasNonFinished(_ context.Context, q db_client.Querier, giftID string) (bool, error) {
	var found bool
	err := s.db.do(q, func(st *state) error {
		for _, a := range st.auctions {
			if a.GiftID == giftID && a.Status != models.AuctionFinished {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (s *Auctions) FetchByID(_ context.Context, q db_client.Querier, id string) (*models.Auction, error) {
	var out *models.Auction
	err := s.db.do(q, func(st *state) error {
		if a, ok := st.auctions[id]; ok {
			out = &a
		}
		return nil
	})
	return out, err
}

func (s *Auctions) FetchExpired(_ context.Context, q db_client.Querier, now time.Time) ([]models.Auction, error) {
	now = models.DBTime(now)
	var list []models.Auction
	err := s.db.do(q, func(st *state) error {
		for _, a := range st.auctions {
			if a.Expired(now) {
				list = append(list, a)
			}
		}
		return nil
	})
	slices.SortFunc(list, func(a, b models.Auction) int {
		return a.RoundExpiresAt.Compare(*b.RoundExpiresAt)
	})
	return list, err
}

func (s *Auctions) List(_ context.Context, q db_client.Querier, status string, limit, offset int) ([]models.Auction, error) {
	if limit == 0 {
		limit = 10
	}
	var list []models.Auction
	err := s.db.do(q, func(st *state) error {
		filter := models.AuctionStatus(status)
		switch filter {
		case models.AuctionScheduled, models.AuctionInProgress, models.AuctionFinished:
		default:
			filter = ""
		}
		for _, a := range st.auctions {
			if filter == "" || a.Status == filter {
				list = append(list, a)
			}
		}
		return nil
	})
	slices.SortFunc(list, func(a, b models.Auction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if offset >= len(list) {
		return nil, err
	}
	list = list[offset:]
	return list[:min(limit, len(list))], err
}

func (s *Auctions) FetchAntiSniping(_ context.Context, q db_client.Querier, auctionID string) (*models.AntiSniping, error) {
	var out *models.AntiSniping
	err := s.db.do(q, func(st *state) error {
		if as, ok := st.anti[auctionID]; ok {
			out = &as
		}
		return nil
	})
	return out, err
}

func (s *Auctions) Arm(_ context.Context, q db_client.Querier, auctionID string, expiresAt time.Time) (bool, error) {
	var armed bool
	err := s.db.do(q, func(st *state) error {
		a, ok := st.auctions[auctionID]
		if !ok || a.Status != models.AuctionScheduled {
			return nil
		}
		exp := models.DBTime(expiresAt)
		a.Status, a.RoundExpiresAt = models.AuctionInProgress, &exp
		st.auctions[auctionID] = a
		armed = true
		return nil
	})
	return armed, err
}

func (s *Auctions) ExtendRound(_ context.Context, q db_client.Querier, auctionID string, current, next time.Time) (bool, error) {
	var ok bool
	err := s.db.do(q, func(st *state) error {
		a, found := st.auctions[auctionID]
		if !found || a.Status != models.AuctionInProgress || a.RoundExpiresAt == nil ||
			!a.RoundExpiresAt.Equal(models.DBTime(current)) {
			return nil
		}
		exp := models.DBTime(next)
		a.RoundExpiresAt = &exp
		st.auctions[auctionID] = a
		ok = true
		return nil
	})
	return ok, err
}

func (s *Auctions) IncrementExtension(_ context.Context, q db_client.Querier, auctionID string) error {
	return s.db.do(q, func(st *state) error {
		as, ok := st.anti[auctionID]
		if !ok || !as.CanExtend() {
			return fmt.Errorf("increment extension %s: %w", auctionID, db_client.ErrConflict)
		}
		as.CurrentExtension++
		st.anti[auctionID] = as
		return nil
	})
}

func (s *Auctions) AdvanceRound(_ context.Context, q db_client.Querier, in auctionstore.AdvanceIn) error {
	return s.db.do(q, func(st *state) error {
		a, ok := st.auctions[in.AuctionID]
		if !ok || a.Round != in.FromRound || a.Status != models.AuctionInProgress {
			return fmt.Errorf("advance round %s: %w", in.AuctionID, db_client.ErrConflict)
		}
		a.Round++
		a.Supply = in.SupplyLeft
		if in.ExpiresAt != nil {
			exp := models.DBTime(*in.ExpiresAt)
			a.RoundExpiresAt, a.Status = &exp, models.AuctionInProgress
		} else {
			a.RoundExpiresAt, a.Status = nil, models.AuctionScheduled
		}
		st.auctions[in.AuctionID] = a

		if as, ok := st.anti[in.AuctionID]; ok {
			as.CurrentExtension = auctionstore.ExtensionBaseline
			st.anti[in.AuctionID] = as
		}
		return nil
	})
}

func (s *Auctions) Finish(_ context.Context, q db_client.Querier, auctionID string, fromRound int) error {
	return s.db.do(q, func(st *state) error {
		a, ok := st.auctions[auctionID]
		if !ok || a.Round != fromRound || a.Status == models.AuctionFinished {
			return fmt.Errorf("finish auction %s: %w", auctionID, db_client.ErrConflict)
		}
		a.Status, a.Supply, a.RoundExpiresAt = models.AuctionFinished, 0, nil
		st.auctions[auctionID] = a
		return nil
	})
}
