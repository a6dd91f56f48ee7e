// Package events publishes auction state changes to Redis pub/sub after the
// change has been committed. Websocket servers on every instance fan them out.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Kind string

const (
	KindCreated  Kind = "created"
	KindStarted  Kind = "started"
	KindBid      Kind = "bid"
	KindExtended Kind = "extended"
	KindRound    Kind = "round"
	KindFinished Kind = "finished"
)

type Winner struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
	Number int64 `json:"number"`
}

// Event is the JSON payload. Seq is stamped by the Lua function so
// subscribers can detect gaps.
type Event struct {
	Event          Kind       `json:"event"`
	AuctionID      string     `json:"auction_id"`
	Round          int        `json:"round"`
	Status         string     `json:"status,omitempty"`
	BidderID       int64      `json:"bidder_id,omitempty"`
	Amount         int64      `json:"amount,omitempty"`
	RoundExpiresAt *time.Time `json:"round_expires_at,omitempty"`
	Winners        []Winner   `json:"winners,omitempty"`
	At             time.Time  `json:"at"`
	Seq            int64      `json:"seq,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

func Channel(auctionID string) string { return "auc:" + auctionID + ":events" }

func seqKey(auctionID string) string { return "auc_seq:" + auctionID }

// RedisPublisher calls the auction_event function from auction_events.lua,
// which numbers and publishes the event in one round trip.
type RedisPublisher struct {
	rdc *redis.Client
}

func NewRedisPublisher(rdc *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdc: rdc}
}

// Publish never fails the caller; the state change is already durable.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("events.marshal_failed", zap.String("auction_id", ev.AuctionID), zap.Error(err))
		return
	}
	err = p.rdc.FCall(ctx, "auction_event",
		[]string{seqKey(ev.AuctionID), Channel(ev.AuctionID)},
		string(payload),
	).Err()
	if err != nil {
		zap.L().Warn("events.publish_failed",
			zap.String("auction_id", ev.AuctionID),
			zap.String("event", string(ev.Event)),
			zap.Error(err))
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
