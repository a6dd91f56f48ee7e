package models

import "time"

type AuctionStatus string

const (
	AuctionScheduled  AuctionStatus = "SCHEDULED"
	AuctionInProgress AuctionStatus = "IN_PROGRESS"
	AuctionFinished   AuctionStatus = "FINISHED"
)

type BidStatus string

const (
	BidPending BidStatus = "PENDING"
	BidClosed  BidStatus = "CLOSED"
)

type User struct {
	UserID    int64     `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type Gift struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	LastIssuedNumber int64  `json:"last_issued_number"`
}

type Auction struct {
	ID               string        `json:"id"`
	GiftID           string        `json:"gift_id"`
	Round            int           `json:"round"`
	RoundExpiresAt   *time.Time    `json:"round_expires_at" example:"2025-07-27T16:05:05Z"`
	Supply           int           `json:"supply"`
	WinnersPerRound  int           `json:"winners_per_round"`
	RoundDurationSec int           `json:"round_duration_sec"`
	Status           AuctionStatus `json:"status" example:"IN_PROGRESS"`
	CreatedAt        time.Time     `json:"created_at"`
}

// RoundDuration is the configured length of one bidding window.
func (a *Auction) RoundDuration() time.Duration {
	return time.Duration(a.RoundDurationSec) * time.Second
}

// Expired reports whether the active round ended at or before now.
func (a *Auction) Expired(now time.Time) bool {
	return a.Status == AuctionInProgress && a.RoundExpiresAt != nil && !a.RoundExpiresAt.After(now)
}

type AntiSniping struct {
	AuctionID            string `json:"auction_id"`
	ExtensionDurationSec int    `json:"extension_duration_sec"`
	ThresholdSec         int    `json:"threshold_sec"`
	MaxExtensions        int    `json:"max_extensions"`
	CurrentExtension     int    `json:"current_extension"`
	Enabled              bool   `json:"enabled"`
}

// CanExtend reports whether another extension fits into the current round.
func (s *AntiSniping) CanExtend() bool {
	return s != nil && s.Enabled && s.CurrentExtension < s.MaxExtensions
}

type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	BidderID  int64     `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	Status    BidStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Ahead reports whether b ranks before other: higher amount first, earlier
// bid first on equal amounts.
func (b *Bid) Ahead(other *Bid) bool {
	if b.Amount != other.Amount {
		return b.Amount > other.Amount
	}
	return b.CreatedAt.Before(other.CreatedAt)
}

type UserGift struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	GiftID    string    `json:"gift_id"`
	GiftName  string    `json:"gift_name"`
	Number    int64     `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}

// DBTime normalises t to the precision Postgres stores timestamps with, so
// values read back compare equal to what was written.
func DBTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
