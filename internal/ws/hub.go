package ws

import (
	"context"
	"encoding/json"
	"sync"

	"giftauction/internal/redis/events"

	"go.uber.org/zap"
)

// Hub keeps client sets per auctionID.
type Hub struct {
	rooms sync.Map // auctionID -> *room
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub { return &Hub{} }

// Broadcast is called by the Redis subscriber. Sockets that cannot take the
// write are dropped from the room.
func (h *Hub) Broadcast(auctionID string, msg []byte) {
	v, ok := h.rooms.Load(auctionID)
	if !ok {
		return
	}
	failed := v.(*room).broadcast(msg)
	for _, c := range failed {
		h.Leave(auctionID, c)
	}
	if len(failed) > 0 {
		zap.L().Debug("ws.dropped_dead_sockets", zap.String("auction_id", auctionID), zap.Int("count", len(failed)))
	}
}

// Publish delivers an event straight to this process's sockets. It stands in
// for the Redis fan-out when Redis is disabled.
func (h *Hub) Publish(_ context.Context, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("ws.marshal_event_failed", zap.String("auction_id", ev.AuctionID), zap.Error(err))
		return
	}
	wrapped, err := wrapEvent(payload)
	if err != nil {
		zap.L().Warn("ws.wrap_event_failed", zap.Error(err))
		return
	}
	h.Broadcast(ev.AuctionID, wrapped)
}

func (h *Hub) Join(auctionID string, c *clientConn) {
	for {
		v, _ := h.rooms.LoadOrStore(auctionID, newRoom())
		if v.(*room).add(c) {
			return
		}
		// the last socket just left; replace the closed room
		h.rooms.CompareAndDelete(auctionID, v)
	}
}

// Leave closes c and forgets the room once nobody watches the auction.
func (h *Hub) Leave(auctionID string, c *clientConn) {
	v, ok := h.rooms.Load(auctionID)
	if !ok {
		_ = c.rawConn.Close()
		return
	}
	if v.(*room).remove(c) {
		h.rooms.CompareAndDelete(auctionID, v)
	}
}

// Size reports how many sockets watch an auction.
func (h *Hub) Size(auctionID string) int {
	if v, ok := h.rooms.Load(auctionID); ok {
		return v.(*room).size()
	}
	return 0
}
