package bidstore

import (
	"context"
	"testing"
	"time"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bidCols = []string{"id", "auction_id", "bidder_id", "amount", "status", "created_at"}

func TestFloor(t *testing.T) {
	t0 := time.Now()
	top := []models.Bid{
		{ID: "b1", BidderID: 1, Amount: 100, CreatedAt: t0},
		{ID: "b2", BidderID: 2, Amount: 80, CreatedAt: t0.Add(time.Second)},
	}

	tests := []struct {
		name    string
		top     []models.Bid
		winners int
		bidder  int64
		wantID  string
	}{
		{name: "no_bids", top: nil, winners: 2, bidder: 3},
		{name: "bidder_leads", top: top, winners: 2, bidder: 1},
		{name: "bidder_second", top: top, winners: 2, bidder: 2, wantID: "b1"},
		{name: "outsider_full_top", top: top, winners: 2, bidder: 3, wantID: "b2"},
		{name: "outsider_free_places", top: top, winners: 3, bidder: 3},
		{name: "zero_winners", top: top, winners: 0, bidder: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Floor(tc.top, tc.winners, tc.bidder)
			if tc.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.wantID, got.ID)
		})
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New()
	now := time.Date(2025, 7, 27, 16, 5, 5, 123456789, time.UTC)

	t.Run("upsert_accumulates_in_one_statement", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO bids .* ON CONFLICT \(auction_id, bidder_id\) WHERE status = 'PENDING' DO UPDATE SET amount = bids.amount \+ EXCLUDED.amount RETURNING id`).
			WithArgs(sqlmock.AnyArg(), "a1", int64(7), int64(50), now.Truncate(time.Microsecond)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("bid-1"))

		id, err := s.Upsert(ctx, db, UpsertIn{AuctionID: "a1", BidderID: 7, Amount: 50, Now: now})
		require.NoError(t, err)
		assert.Equal(t, "bid-1", id)
	})

	t.Run("fetch_user_bid_missing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM bids WHERE auction_id = \$1 AND bidder_id = \$2 AND status = 'PENDING'`).
			WithArgs("a1", int64(9)).
			WillReturnRows(sqlmock.NewRows(bidCols))
		b, err := s.FetchUserBid(ctx, db, "a1", 9)
		require.NoError(t, err)
		assert.Nil(t, b)
	})

	t.Run("lowest_winning_uses_ranked_top", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM bids WHERE auction_id = \$1 AND status = 'PENDING' ORDER BY amount DESC, created_at ASC, id ASC LIMIT \$2`).
			WithArgs("a1", 2).
			WillReturnRows(sqlmock.NewRows(bidCols).
				AddRow("b1", "a1", 1, 100, "PENDING", now).
				AddRow("b2", "a1", 2, 80, "PENDING", now.Add(time.Second)))

		floor, err := s.LowestWinning(ctx, db, "a1", 2, 3)
		require.NoError(t, err)
		require.NotNil(t, floor)
		assert.Equal(t, int64(80), floor.Amount)
		assert.Equal(t, models.BidPending, floor.Status)
	})

	t.Run("rank_counts_bids_ahead", func(t *testing.T) {
		mock.ExpectQuery(`SELECT count\(\*\) FROM bids WHERE auction_id = \$1 AND status = 'PENDING' AND \(amount > \$2 OR \(amount = \$2 AND created_at < \$3\)\)`).
			WithArgs("a1", int64(80), now).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		rank, err := s.Rank(ctx, db, &models.Bid{ID: "b2", AuctionID: "a1", Amount: 80, CreatedAt: now})
		require.NoError(t, err)
		assert.Equal(t, 2, rank)
	})

	t.Run("close_requires_pending", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bids SET status = 'CLOSED' WHERE id = \$1 AND status = 'PENDING'`).
			WithArgs("b1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, s.Close(ctx, db, "b1"), db_client.ErrConflict)
	})

	t.Run("close_all_pending", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bids SET status = 'CLOSED' WHERE auction_id = \$1 AND status = 'PENDING'`).
			WithArgs("a1").
			WillReturnResult(sqlmock.NewResult(0, 4))
		n, err := s.CloseAllPending(ctx, db, "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("count_pending", func(t *testing.T) {
		mock.ExpectQuery(`SELECT count\(\*\) FROM bids WHERE auction_id = \$1 AND status = 'PENDING'`).
			WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		n, err := s.CountPending(ctx, db, "a1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
