package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	rdc, mock := redismock.NewClientMock()
	p := NewRedisPublisher(rdc)

	at := time.Date(2025, 7, 27, 16, 5, 5, 0, time.UTC)
	ev := Event{Event: KindBid, AuctionID: "a1", Round: 0, BidderID: 7, Amount: 50, At: at}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	t.Run("fcall_with_seq_and_channel", func(t *testing.T) {
		mock.ExpectFCall("auction_event", []string{"auc_seq:a1", "auc:a1:events"}, string(payload)).SetVal(int64(1))
		p.Publish(ctx, ev)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis_error_is_swallowed", func(t *testing.T) {
		mock.ExpectFCall("auction_event", []string{"auc_seq:a1", "auc:a1:events"}, string(payload)).
			SetErr(errors.New("ERR Function not found"))
		assert.NotPanics(t, func() { p.Publish(ctx, ev) })
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventJSON(t *testing.T) {
	exp := time.Date(2025, 7, 27, 16, 6, 5, 0, time.UTC)
	raw, err := json.Marshal(Event{Event: KindRound, AuctionID: "a1", Round: 2, RoundExpiresAt: &exp,
		Winners: []Winner{{UserID: 1, Amount: 100, Number: 1}}})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "round", m["event"])
	assert.Equal(t, "2025-07-27T16:06:05Z", m["round_expires_at"])
	assert.NotContains(t, m, "bidder_id")
	assert.NotContains(t, m, "seq")
}
