package roundreaper

import (
	"context"
	"time"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/database/giftstore"
	"giftauction/internal/models"
	"giftauction/internal/redis/events"

	"go.uber.org/zap"
)

type Settlement struct {
	AuctionID string
	Round     int
	// Skipped is set when the round was already settled or is not due yet.
	Skipped       bool
	Finished      bool
	Winners       []events.Winner
	Refunded      int64
	NextExpiresAt *time.Time
	At            time.Time
}

// SettleRound closes the expired round of one auction in a single
// transaction: winners get numbered gifts, and the auction either finishes
// (refunding everyone else) or moves to the next round.
func (r *Reaper) SettleRound(ctx context.Context, auctionID string) (*Settlement, error) {
	var res *Settlement
	err := r.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		var err error
		res, err = r.settle(ctx, q, auctionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Skipped {
		return res, nil
	}

	zap.L().Info("reaper.round_settled",
		zap.String("auction_id", auctionID),
		zap.Int("round", res.Round),
		zap.Int("winners", len(res.Winners)),
		zap.Bool("finished", res.Finished),
		zap.Int64("refunded", res.Refunded))

	ev := events.Event{
		Event: events.KindRound, AuctionID: auctionID, Round: res.Round + 1,
		RoundExpiresAt: res.NextExpiresAt, Winners: res.Winners, At: res.At,
		Status: string(models.AuctionInProgress),
	}
	switch {
	case res.Finished:
		ev.Event, ev.Round, ev.Status = events.KindFinished, res.Round, string(models.AuctionFinished)
	case res.NextExpiresAt == nil:
		ev.Status = string(models.AuctionScheduled)
	}
	r.events.Publish(ctx, ev)
	return res, nil
}

func (r *Reaper) settle(ctx context.Context, q db_client.Querier, auctionID string) (*Settlement, error) {
	now := r.now()
	res := &Settlement{AuctionID: auctionID, At: now}

	a, err := r.auctions.FetchByID(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.Expired(now) {
		res.Skipped = true
		return res, nil
	}
	res.Round = a.Round

	// Never hand out more items than are left.
	winners, err := r.bids.FetchTop(ctx, q, auctionID, min(a.WinnersPerRound, a.Supply))
	if err != nil {
		return nil, err
	}
	supplyLeft := max(0, a.Supply-len(winners))

	// Winners leave PENDING first, so everything still PENDING below is a loser.
	for _, w := range winners {
		if err := r.bids.Close(ctx, q, w.ID); err != nil {
			return nil, err
		}
	}

	if supplyLeft == 0 {
		if res.Refunded, err = r.ledger.RefundPending(ctx, q, auctionID); err != nil {
			return nil, err
		}
		if _, err := r.bids.CloseAllPending(ctx, q, auctionID); err != nil {
			return nil, err
		}
		if err := r.auctions.Finish(ctx, q, auctionID, a.Round); err != nil {
			return nil, err
		}
		res.Finished = true
	} else {
		left, err := r.bids.CountPending(ctx, q, auctionID)
		if err != nil {
			return nil, err
		}
		if left > 0 {
			exp := models.DBTime(now.Add(a.RoundDuration()))
			res.NextExpiresAt = &exp
		}
		err = r.auctions.AdvanceRound(ctx, q, auctionstore.AdvanceIn{
			AuctionID:  auctionID,
			FromRound:  a.Round,
			SupplyLeft: supplyLeft,
			ExpiresAt:  res.NextExpiresAt,
		})
		if err != nil {
			return nil, err
		}
	}

	if len(winners) == 0 {
		return res, nil
	}
	start, err := r.gifts.ReserveNumbers(ctx, q, a.GiftID, len(winners))
	if err != nil {
		return nil, err
	}
	allocs := make([]giftstore.Allocation, len(winners))
	res.Winners = make([]events.Winner, len(winners))
	for i, w := range winners {
		n := start + int64(i)
		allocs[i] = giftstore.Allocation{UserID: w.BidderID, Number: n}
		res.Winners[i] = events.Winner{UserID: w.BidderID, Amount: w.Amount, Number: n}
	}
	if err := r.gifts.Allocate(ctx, q, a.GiftID, allocs, now); err != nil {
		return nil, err
	}
	return res, nil
}
