package ws

import (
	"encoding/json"
	"errors"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

const (
	EventSnapshot = "auctions/snapshot"
	EventBid      = "auctions/bid"
	EventTop      = "auctions/top"
	EventError    = "error"
	ackSuffix     = "-ack"
)

// errBadFrame marks frames the router could not understand.
var errBadFrame = errors.New("bad frame")

// BidRequest is the body for "auctions/bid". Amount may be a number or a
// numeric string.
type BidRequest struct {
	Amount json.Number `json:"amount" validate:"required"`
}

type BidAck struct {
	BidID string `json:"bid_id"`
}

// TopRequest is the (empty) body for "auctions/top".
type TopRequest struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
