package auctionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"

	"github.com/google/uuid"
)

// ErrAnotherActive is returned by Create when the one-open-auction-per-gift
// index rejects the insert.
var ErrAnotherActive = errors.New("another auction for this gift is not finished")

const activePerGiftIndex = "auctions_one_active_per_gift"

const auctionColumns = `id, gift_id, round, round_expires_at, supply, winners_per_round, round_duration_sec, status, created_at`

// ExtensionBaseline is what current_extension is reset to when a round advances.
const ExtensionBaseline = 1

type Store struct{}

func New() *Store { return &Store{} }

type AntiSnipingIn struct {
	ExtensionDurationSec int
	ThresholdSec         int
	MaxExtensions        int
}

type CreateIn struct {
	GiftID           string
	Supply           int
	WinnersPerRound  int
	RoundDurationSec int
	AntiSniping      *AntiSnipingIn
	Now              time.Time
}

// Create inserts a SCHEDULED auction and, when requested, its anti-sniping row.
func (s *Store) Create(ctx context.Context, q db_client.Querier, in CreateIn) (string, error) {
	id := uuid.NewString()

	const ins = `
	  INSERT INTO auctions (id, gift_id, round, round_expires_at, supply,
	                        winners_per_round, round_duration_sec, status, created_at)
	       VALUES ($1, $2, 0, NULL, $3, $4, $5, 'SCHEDULED', $6)`
	_, err := q.ExecContext(ctx, ins,
		id, in.GiftID, in.Supply, in.WinnersPerRound, in.RoundDurationSec, models.DBTime(in.Now))
	if err != nil {
		if db_client.IsUniqueViolation(err, activePerGiftIndex) {
			return "", ErrAnotherActive
		}
		return "", fmt.Errorf("insert auction: %w", err)
	}

	if in.AntiSniping != nil {
		const insAS = `
		  INSERT INTO auction_anti_sniping (auction_id, extension_duration_sec, threshold_sec,
		                                    max_extensions, current_extension, enabled)
		       VALUES ($1, $2, $3, $4, 0, TRUE)`
		_, err = q.ExecContext(ctx, insAS, id,
			in.AntiSniping.ExtensionDurationSec, in.AntiSniping.ThresholdSec, in.AntiSniping.MaxExtensions)
		if err != nil {
			return "", fmt.Errorf("insert anti-sniping settings: %w", err)
		}
	}
	return id, nil
}

func (s *Store) HasNonFinished(ctx context.Context, q db_client.Querier, giftID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM auctions WHERE gift_id = $1 AND status <> 'FINISHED')`, giftID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open auction for gift %s: %w", giftID, err)
	}
	return exists, nil
}

// FetchByID returns nil when the auction does not exist.
func (s *Store) FetchByID(ctx context.Context, q db_client.Querier, id string) (*models.Auction, error) {
	a, err := scanAuction(q.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch auction %s: %w", id, err)
	}
	return a, nil
}

// FetchExpired lists auctions whose running round ended at or before now.
func (s *Store) FetchExpired(ctx context.Context, q db_client.Querier, now time.Time) ([]models.Auction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions
		  WHERE round_expires_at <= $1 AND status = 'IN_PROGRESS'
		  ORDER BY round_expires_at ASC`, models.DBTime(now))
	if err != nil {
		return nil, fmt.Errorf("fetch expired auctions: %w", err)
	}
	return collect(rows)
}

// List is a page of auctions, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, q db_client.Querier, status string, limit, offset int) ([]models.Auction, error) {
	if limit == 0 {
		limit = 10
	}
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + auctionColumns + ` FROM auctions`
	switch models.AuctionStatus(status) {
	case models.AuctionScheduled, models.AuctionInProgress, models.AuctionFinished:
		rows, err = q.QueryContext(ctx, base+" WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			status, limit, offset)
	default:
		rows, err = q.QueryContext(ctx, base+" ORDER BY created_at DESC LIMIT $1 OFFSET $2",
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return collect(rows)
}

// FetchAntiSniping returns nil when the auction was created without anti-sniping.
func (s *Store) FetchAntiSniping(ctx context.Context, q db_client.Querier, auctionID string) (*models.AntiSniping, error) {
	as := &models.AntiSniping{}
	err := q.QueryRowContext(ctx,
		`SELECT auction_id, extension_duration_sec, threshold_sec, max_extensions, current_extension, enabled
		   FROM auction_anti_sniping WHERE auction_id = $1`, auctionID,
	).Scan(&as.AuctionID, &as.ExtensionDurationSec, &as.ThresholdSec, &as.MaxExtensions, &as.CurrentExtension, &as.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch anti-sniping %s: %w", auctionID, err)
	}
	return as, nil
}

// Arm starts the first round of a SCHEDULED auction. It reports false when
// another transaction armed it first.
func (s *Store) Arm(ctx context.Context, q db_client.Querier, auctionID string, expiresAt time.Time) (bool, error) {
	n, err := db_client.ExecConditional(ctx, q,
		`UPDATE auctions SET status = 'IN_PROGRESS', round_expires_at = $2
		  WHERE id = $1 AND status = 'SCHEDULED'`, auctionID, models.DBTime(expiresAt))
	if err != nil {
		return false, fmt.Errorf("arm auction %s: %w", auctionID, err)
	}
	return n == 1, nil
}

// ExtendRound moves the expiry from current to next. It reports false when
// the stored expiry is no longer current.
func (s *Store) ExtendRound(ctx context.Context, q db_client.Querier, auctionID string, current, next time.Time) (bool, error) {
	n, err := db_client.ExecConditional(ctx, q,
		`UPDATE auctions SET round_expires_at = $3
		  WHERE id = $1 AND round_expires_at = $2 AND status = 'IN_PROGRESS'`,
		auctionID, models.DBTime(current), models.DBTime(next))
	if err != nil {
		return false, fmt.Errorf("extend round %s: %w", auctionID, err)
	}
	return n == 1, nil
}

// IncrementExtension consumes one extension slot of the current round.
func (s *Store) IncrementExtension(ctx context.Context, q db_client.Querier, auctionID string) error {
	return db_client.MustAffectOne(ctx, q, "increment extension "+auctionID,
		`UPDATE auction_anti_sniping SET current_extension = current_extension + 1
		  WHERE auction_id = $1 AND enabled AND current_extension < max_extensions`, auctionID)
}

type AdvanceIn struct {
	AuctionID  string
	FromRound  int
	SupplyLeft int
	// ExpiresAt nil parks the auction as SCHEDULED until the next bid arms it.
	ExpiresAt *time.Time
}

// AdvanceRound moves the auction from FromRound to the next round and resets
// the anti-sniping counter. The round condition makes a second settlement of
// the same round fail with db_client.ErrConflict.
func (s *Store) AdvanceRound(ctx context.Context, q db_client.Querier, in AdvanceIn) error {
	status := models.AuctionScheduled
	var expires any
	if in.ExpiresAt != nil {
		status = models.AuctionInProgress
		expires = models.DBTime(*in.ExpiresAt)
	}

	err := db_client.MustAffectOne(ctx, q, "advance round "+in.AuctionID,
		`UPDATE auctions SET round = round + 1, supply = $3, round_expires_at = $4, status = $5
		  WHERE id = $1 AND round = $2 AND status = 'IN_PROGRESS'`,
		in.AuctionID, in.FromRound, in.SupplyLeft, expires, string(status))
	if err != nil {
		return err
	}

	_, err = db_client.ExecConditional(ctx, q,
		`UPDATE auction_anti_sniping SET current_extension = $2 WHERE auction_id = $1`,
		in.AuctionID, ExtensionBaseline)
	if err != nil {
		return fmt.Errorf("reset extensions %s: %w", in.AuctionID, err)
	}
	return nil
}

// Finish makes the auction terminal, zeroes its supply and clears its expiry.
func (s *Store) Finish(ctx context.Context, q db_client.Querier, auctionID string, fromRound int) error {
	return db_client.MustAffectOne(ctx, q, "finish auction "+auctionID,
		`UPDATE auctions SET status = 'FINISHED', supply = 0, round_expires_at = NULL
		  WHERE id = $1 AND round = $2 AND status <> 'FINISHED'`, auctionID, fromRound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuction(sc scanner) (*models.Auction, error) {
	a := &models.Auction{}
	var (
		expires sql.NullTime
		status  string
	)
	if err := sc.Scan(&a.ID, &a.GiftID, &a.Round, &expires, &a.Supply,
		&a.WinnersPerRound, &a.RoundDurationSec, &status, &a.CreatedAt); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time.UTC()
		a.RoundExpiresAt = &t
	}
	a.Status = models.AuctionStatus(status)
	return a, nil
}

func collect(rows *sql.Rows) ([]models.Auction, error) {
	defer rows.Close()
	var list []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
