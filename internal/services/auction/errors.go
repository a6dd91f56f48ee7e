package auction

import (
	"errors"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/ledger"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrGiftNotFound         = errors.New("gift not found")
	ErrInactiveAuction      = errors.New("auction is finished")
	ErrTooSmallBid          = errors.New("bid is too small")
	ErrAnotherActiveAuction = auctionstore.ErrAnotherActive

	// Re-exported so callers only need this package.
	ErrUserNotFound      = ledger.ErrUserNotFound
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
)
