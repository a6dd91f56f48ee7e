package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftauction/internal/database/auctionstore"
	"giftauction/internal/database/bidstore"
	"giftauction/internal/database/db_client"
	"giftauction/internal/models"
	"giftauction/internal/redis/events"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type AntiSnipingIn struct {
	ExtensionDurationSec int `json:"extension_duration_sec" validate:"gt=0"`
	ThresholdSec         int `json:"threshold_sec"          validate:"gt=0"`
	MaxExtensions        int `json:"max_extensions"         validate:"gte=0"`
}

type CreateAuctionIn struct {
	GiftID           string         `json:"gift_id"            validate:"required"`
	Supply           int            `json:"supply"             validate:"gt=0"`
	WinnersPerRound  int            `json:"winners_per_round"  validate:"gt=0"`
	RoundDurationSec int            `json:"round_duration_sec" validate:"gt=0"`
	AntiSniping      *AntiSnipingIn `json:"anti_sniping,omitempty"`
}

type AuctionView struct {
	Auction          *models.Auction     `json:"auction"`
	AntiSniping      *models.AntiSniping `json:"anti_sniping"`
	MinimalBidToBeat *models.Bid         `json:"minimal_bid_to_beat"`
}

type TopBids struct {
	Bids      []models.Bid `json:"bids"`
	UserBid   *models.Bid  `json:"user_bid"`
	UserPlace *int         `json:"user_place"`
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, in CreateAuctionIn) (string, error)
	SubmitBid(ctx context.Context, auctionID string, bidderID, amount int64) (string, error)
	GetAuction(ctx context.Context, auctionID string, callerID int64) (*AuctionView, error)
	GetTopBids(ctx context.Context, auctionID string, callerID int64) (*TopBids, error)
	ListAuctions(ctx context.Context, status string, limit, offset int) ([]models.Auction, error)
}

type auctionService struct {
	tx       db_client.Transactor
	ledger   Ledger
	bids     BidStore
	auctions AuctionStore
	gifts    GiftStore
	events   events.Publisher
	validate *validator.Validate
	now      func() time.Time
}

var _ IAuctionService = (*auctionService)(nil)

type Option func(*auctionService)

// WithClock replaces time.Now; tests use it to step through rounds.
func WithClock(now func() time.Time) Option {
	return func(s *auctionService) { s.now = now }
}

func NewAuctionService(tx db_client.Transactor, st Stores, pub events.Publisher, opts ...Option) IAuctionService {
	if pub == nil {
		pub = events.Nop{}
	}
	svc := &auctionService{
		tx:       tx,
		ledger:   st.Ledger,
		bids:     st.Bids,
		auctions: st.Auctions,
		gifts:    st.Gifts,
		events:   pub,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

func (svc *auctionService) CreateAuction(ctx context.Context, in CreateAuctionIn) (string, error) {
	if err := svc.validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	var (
		id  string
		now time.Time
	)
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		now = svc.now()
		g, err := svc.gifts.FetchByID(ctx, q, in.GiftID)
		if err != nil {
			return err
		}
		if g == nil {
			return ErrGiftNotFound
		}

		busy, err := svc.auctions.HasNonFinished(ctx, q, in.GiftID)
		if err != nil {
			return err
		}
		if busy {
			return ErrAnotherActiveAuction
		}

		create := auctionstore.CreateIn{
			GiftID:           in.GiftID,
			Supply:           in.Supply,
			WinnersPerRound:  in.WinnersPerRound,
			RoundDurationSec: in.RoundDurationSec,
			Now:              now,
		}
		if in.AntiSniping != nil {
			create.AntiSniping = &auctionstore.AntiSnipingIn{
				ExtensionDurationSec: in.AntiSniping.ExtensionDurationSec,
				ThresholdSec:         in.AntiSniping.ThresholdSec,
				MaxExtensions:        in.AntiSniping.MaxExtensions,
			}
		}
		id, err = svc.auctions.Create(ctx, q, create)
		return err
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("auction.created", zap.String("auction_id", id), zap.String("gift_id", in.GiftID),
		zap.Int("supply", in.Supply), zap.Int("winners_per_round", in.WinnersPerRound))
	svc.events.Publish(ctx, events.Event{
		Event: events.KindCreated, AuctionID: id, Status: string(models.AuctionScheduled), At: now,
	})
	return id, nil
}

// bidResult is what one attempt of the bid transaction observed. It is only
// published once the attempt commits.
type bidResult struct {
	bidID    string
	round    int
	started  bool
	extended bool
	expires  *time.Time
	now      time.Time
}

func (svc *auctionService) SubmitBid(ctx context.Context, auctionID string, bidderID, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	var res bidResult
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		var err error
		res, err = svc.placeBid(ctx, q, auctionID, bidderID, amount)
		return err
	})
	if err != nil {
		return "", err
	}

	if res.started {
		svc.events.Publish(ctx, events.Event{
			Event: events.KindStarted, AuctionID: auctionID, Round: res.round,
			Status: string(models.AuctionInProgress), RoundExpiresAt: res.expires, At: res.now,
		})
	}
	svc.events.Publish(ctx, events.Event{
		Event: events.KindBid, AuctionID: auctionID, Round: res.round,
		BidderID: bidderID, Amount: amount, At: res.now,
	})
	if res.extended {
		zap.L().Debug("auction.round_extended", zap.String("auction_id", auctionID), zap.Timep("round_expires_at", res.expires))
		svc.events.Publish(ctx, events.Event{
			Event: events.KindExtended, AuctionID: auctionID, Round: res.round,
			RoundExpiresAt: res.expires, At: res.now,
		})
	}
	return res.bidID, nil
}

func (svc *auctionService) placeBid(ctx context.Context, q db_client.Querier, auctionID string, bidderID, amount int64) (bidResult, error) {
	res := bidResult{now: svc.now()}

	a, err := svc.auctions.FetchByID(ctx, q, auctionID)
	if err != nil {
		return res, err
	}
	if a == nil {
		return res, ErrAuctionNotFound
	}
	if a.Status == models.AuctionFinished {
		return res, ErrInactiveAuction
	}
	res.round = a.Round

	existing, err := svc.bids.FetchUserBid(ctx, q, auctionID, bidderID)
	if err != nil {
		return res, err
	}
	resulting := amount
	if existing != nil {
		resulting += existing.Amount
	}

	floor, err := svc.bids.LowestWinning(ctx, q, auctionID, a.WinnersPerRound, bidderID)
	if err != nil {
		return res, err
	}
	if floor != nil && resulting < floor.Amount {
		return res, fmt.Errorf("%w: total %d is below %d", ErrTooSmallBid, resulting, floor.Amount)
	}

	u, err := svc.ledger.FetchByID(ctx, q, bidderID)
	if err != nil {
		return res, err
	}
	if u == nil {
		return res, ErrUserNotFound
	}
	if u.Balance < amount {
		return res, ErrInsufficientFunds
	}

	res.bidID, err = svc.bids.Upsert(ctx, q, bidstore.UpsertIn{
		AuctionID: auctionID, BidderID: bidderID, Amount: amount, Now: res.now,
	})
	if err != nil {
		return res, err
	}

	res.expires = a.RoundExpiresAt
	if a.Status == models.AuctionScheduled {
		exp := models.DBTime(res.now.Add(a.RoundDuration()))
		armed, err := svc.auctions.Arm(ctx, q, auctionID, exp)
		if err != nil {
			return res, err
		}
		if armed {
			res.started = true
			res.expires = &exp
		} else {
			// Armed by a concurrent bid; continue with its expiry.
			if a, err = svc.auctions.FetchByID(ctx, q, auctionID); err != nil {
				return res, err
			}
			if a == nil {
				return res, ErrAuctionNotFound
			}
			res.expires = a.RoundExpiresAt
		}
	}

	if err := svc.ledger.Decrease(ctx, q, bidderID, amount); err != nil {
		return res, err
	}

	res.extended, res.expires, err = svc.extendIfSniping(ctx, q, auctionID, res.expires, res.now)
	return res, err
}

// extendIfSniping pushes the round end back when the bid landed inside the
// threshold window. A lost expiry CAS means a concurrent bid already extended
// this deadline, so it is not an error. A lost counter update after a won
// expiry CAS is, and the transaction is replayed.
func (svc *auctionService) extendIfSniping(ctx context.Context, q db_client.Querier, auctionID string, expires *time.Time, now time.Time) (bool, *time.Time, error) {
	if expires == nil {
		return false, expires, nil
	}
	as, err := svc.auctions.FetchAntiSniping(ctx, q, auctionID)
	if err != nil {
		return false, expires, err
	}
	if !as.CanExtend() {
		return false, expires, nil
	}

	remaining := expires.Sub(now)
	threshold := time.Duration(as.ThresholdSec) * time.Second
	if remaining <= 0 || remaining > threshold {
		return false, expires, nil
	}

	next := expires.Add(time.Duration(as.ExtensionDurationSec) * time.Second)
	ok, err := svc.auctions.ExtendRound(ctx, q, auctionID, *expires, next)
	if err != nil || !ok {
		return false, expires, err
	}
	if err := svc.auctions.IncrementExtension(ctx, q, auctionID); err != nil {
		return false, expires, err
	}
	return true, &next, nil
}

func (svc *auctionService) GetAuction(ctx context.Context, auctionID string, callerID int64) (*AuctionView, error) {
	var view *AuctionView
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		a, err := svc.auctions.FetchByID(ctx, q, auctionID)
		if err != nil {
			return err
		}
		if a == nil {
			return ErrAuctionNotFound
		}
		as, err := svc.auctions.FetchAntiSniping(ctx, q, auctionID)
		if err != nil {
			return err
		}
		floor, err := svc.bids.LowestWinning(ctx, q, auctionID, a.WinnersPerRound, callerID)
		if err != nil {
			return err
		}
		view = &AuctionView{Auction: a, AntiSniping: as, MinimalBidToBeat: floor}
		return nil
	})
	return view, err
}

func (svc *auctionService) GetTopBids(ctx context.Context, auctionID string, callerID int64) (*TopBids, error) {
	var top *TopBids
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		a, err := svc.auctions.FetchByID(ctx, q, auctionID)
		if err != nil {
			return err
		}
		if a == nil {
			return ErrAuctionNotFound
		}

		bids, err := svc.bids.FetchTop(ctx, q, auctionID, a.WinnersPerRound)
		if err != nil {
			return err
		}
		if bids == nil {
			bids = []models.Bid{}
		}
		top = &TopBids{Bids: bids}

		mine, err := svc.bids.FetchUserBid(ctx, q, auctionID, callerID)
		if err != nil || mine == nil {
			return err
		}
		place, err := svc.bids.Rank(ctx, q, mine)
		if err != nil {
			return err
		}
		top.UserBid, top.UserPlace = mine, &place
		return nil
	})
	return top, err
}

func (svc *auctionService) ListAuctions(ctx context.Context, status string, limit, offset int) ([]models.Auction, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	var list []models.Auction
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		var err error
		list, err = svc.auctions.List(ctx, q, status, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Auction{}
	}
	return list, nil
}

// IsBusinessError reports whether err is one of the engine's domain outcomes
// as opposed to an infrastructure failure.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrAuctionNotFound, ErrGiftNotFound, ErrUserNotFound, ErrInactiveAuction,
		ErrTooSmallBid, ErrInsufficientFunds, ErrAnotherActiveAuction,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
