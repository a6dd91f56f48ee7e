package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/bidstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/database/ledger"
	"giftauction/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := New(1000)
	require.NoError(t, db.Ledger().Create(ctx, nil, 1))

	boom := errors.New("boom")
	err := db.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		require.NoError(t, db.Ledger().Decrease(ctx, q, 1, 400))
		require.NoError(t, db.Ledger().Create(ctx, q, 2))
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := db.Ledger().FetchByID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.Balance)
	u, err = db.Ledger().FetchByID(ctx, nil, 2)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestRunTxCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New(0).RunTx(ctx, func(context.Context, db_client.Querier) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l := New(500).Ledger()

	require.NoError(t, l.Create(ctx, nil, 1))
	require.NoError(t, l.Decrease(ctx, nil, 1, 200))
	require.NoError(t, l.Create(ctx, nil, 1))
	u, _ := l.FetchByID(ctx, nil, 1)
	assert.Equal(t, int64(300), u.Balance, "create must not reset an existing user")

	require.ErrorIs(t, l.Decrease(ctx, nil, 1, 301), ledger.ErrInsufficientFunds)
	require.ErrorIs(t, l.Decrease(ctx, nil, 9, 1), ledger.ErrInsufficientFunds)
	require.ErrorIs(t, l.Increase(ctx, nil, 9, 1), ledger.ErrUserNotFound)
	require.ErrorIs(t, l.Restore(ctx, nil, 9), ledger.ErrUserNotFound)

	require.NoError(t, l.Restore(ctx, nil, 1))
	u, _ = l.FetchByID(ctx, nil, 1)
	assert.Equal(t, int64(500), u.Balance)
}

func TestBidsRankingAndFloor(t *testing.T) {
	ctx := context.Background()
	db := New(0)
	s := db.Bids()
	t0 := time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)

	up := func(bidder, amount int64, at time.Time) string {
		id, err := s.Upsert(ctx, nil, bidstore.UpsertIn{AuctionID: "a1", BidderID: bidder, Amount: amount, Now: at})
		require.NoError(t, err)
		return id
	}
	first := up(1, 100, t0)
	up(2, 100, t0.Add(time.Second))
	third := up(3, 50, t0)
	assert.Equal(t, third, up(3, 70, t0.Add(time.Minute)), "top-up must reuse the pending bid")

	top, err := s.FetchTop(ctx, nil, "a1", 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{top[0].BidderID, top[1].BidderID, top[2].BidderID})
	assert.Equal(t, int64(120), top[0].Amount)
	assert.Equal(t, t0, top[0].CreatedAt, "top-up keeps the original bid time")

	rank, err := s.Rank(ctx, nil, &top[2])
	require.NoError(t, err)
	assert.Equal(t, 3, rank)

	floor, err := s.LowestWinning(ctx, nil, "a1", 2, 2)
	require.NoError(t, err)
	require.NotNil(t, floor)
	assert.Equal(t, int64(1), floor.BidderID)

	require.NoError(t, s.Close(ctx, nil, first))
	require.ErrorIs(t, s.Close(ctx, nil, first), db_client.ErrConflict)
	n, err := s.CountPending(ctx, nil, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Upsert(ctx, nil, bidstore.UpsertIn{AuctionID: "a1", BidderID: 1, Amount: 0, Now: t0})
	require.Error(t, err)
}

func TestAuctionsTransitions(t *testing.T) {
	ctx := context.Background()
	db := New(0)
	require.NoError(t, db.Gifts().Upsert(ctx, nil, "star", "Star"))
	s := db.Auctions()
	now := time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)

	id, err := s.Create(ctx, nil, auctionstore.CreateIn{GiftID: "star", Supply: 3, WinnersPerRound: 2, RoundDurationSec: 60, Now: now,
		AntiSniping: &auctionstore.AntiSnipingIn{ExtensionDurationSec: 10, ThresholdSec: 3, MaxExtensions: 1}})
	require.NoError(t, err)
	_, err = s.Create(ctx, nil, auctionstore.CreateIn{GiftID: "star", Supply: 1, WinnersPerRound: 1, RoundDurationSec: 60, Now: now})
	require.ErrorIs(t, err, auctionstore.ErrAnotherActive)

	exp := now.Add(time.Minute)
	armed, err := s.Arm(ctx, nil, id, exp)
	require.NoError(t, err)
	assert.True(t, armed)
	armed, err = s.Arm(ctx, nil, id, exp.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, armed)

	ok, err := s.ExtendRound(ctx, nil, id, exp.Add(time.Second), exp.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "stale expiry must not extend")
	ok, err = s.ExtendRound(ctx, nil, id, exp, exp.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.IncrementExtension(ctx, nil, id))
	require.ErrorIs(t, s.IncrementExtension(ctx, nil, id), db_client.ErrConflict)

	expired, err := s.FetchExpired(ctx, nil, exp.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	require.NoError(t, s.AdvanceRound(ctx, nil, auctionstore.AdvanceIn{AuctionID: id, FromRound: 0, SupplyLeft: 1}))
	require.ErrorIs(t, s.AdvanceRound(ctx, nil, auctionstore.AdvanceIn{AuctionID: id, FromRound: 0, SupplyLeft: 1}), db_client.ErrConflict)

	a, err := s.FetchByID(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionScheduled, a.Status)
	assert.Nil(t, a.RoundExpiresAt)
	as, err := s.FetchAntiSniping(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, auctionstore.ExtensionBaseline, as.CurrentExtension)

	require.ErrorIs(t, s.Finish(ctx, nil, id, 0), db_client.ErrConflict)
	require.NoError(t, s.Finish(ctx, nil, id, 1))
	a, err = s.FetchByID(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionFinished, a.Status)
	assert.Zero(t, a.Supply)

	list, err := s.List(ctx, nil, "FINISHED", 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.List(ctx, nil, "", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGiftsNumbering(t *testing.T) {
	ctx := context.Background()
	db := New(0)
	g := db.Gifts()
	require.NoError(t, g.Upsert(ctx, nil, "star", "Star"))

	start, err := g.ReserveNumbers(ctx, nil, "star", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), start)
	start, err = g.ReserveNumbers(ctx, nil, "star", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), start)

	_, err = g.ReserveNumbers(ctx, nil, "nope", 1)
	require.Error(t, err)
}
