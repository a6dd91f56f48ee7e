package ws

import (
	"context"
	"encoding/json"
	"sync"

	"giftauction/internal/redis/events"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriptionManager keeps exactly one Redis subscription per auction
// channel, however many sockets watch that auction.
type subscriptionManager struct {
	rdb  *redis.Client
	hub  *Hub
	mu   sync.Mutex
	subs map[string]*subEntry // auctionID -> subscription
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(rdb *redis.Client, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		rdb:  rdb,
		hub:  hub,
		subs: make(map[string]*subEntry),
	}
}

// Subscribe opens the channel for the first watcher and only bumps the
// ref-counter afterwards.
func (sm *subscriptionManager) Subscribe(auctionID string) {
	sm.mu.Lock()
	if e, ok := sm.subs[auctionID]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := sm.rdb.Subscribe(ctx, events.Channel(auctionID))

	sm.subs[auctionID] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	go sm.fanOut(ctx, auctionID, ps)
}

func (sm *subscriptionManager) fanOut(ctx context.Context, auctionID string, ps *redis.PubSub) {
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			wrapped, err := wrapEvent([]byte(m.Payload))
			if err != nil {
				zap.L().Warn("ws.wrap_event_failed", zap.String("auction_id", auctionID), zap.Error(err))
				wrapped = []byte(m.Payload)
			}
			sm.hub.Broadcast(auctionID, wrapped)
		}
	}
}

// Unsubscribe drops the Redis subscription when the last watcher leaves.
func (sm *subscriptionManager) Unsubscribe(auctionID string) {
	sm.mu.Lock()
	e, ok := sm.subs[auctionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, auctionID)
	sm.mu.Unlock()

	e.cancel()
}

// Close tears every subscription down.
func (sm *subscriptionManager) Close() {
	sm.mu.Lock()
	subs := sm.subs
	sm.subs = make(map[string]*subEntry)
	sm.mu.Unlock()

	for _, e := range subs {
		e.cancel()
	}
}

// wrapEvent turns
//
//	{"event":"bid","auction_id":"a1","amount":50,"seq":3}
//
// into
//
//	{"event":"auctions/bid","body":{"auction_id":"a1","amount":50,"seq":3}}
func wrapEvent(payload []byte) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	var evt string
	if v, ok := raw["event"]; ok {
		_ = json.Unmarshal(v, &evt)
	}
	if evt == "" {
		evt = "unknown"
	}
	delete(raw, "event")

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: "auctions/" + evt, Body: body})
}
