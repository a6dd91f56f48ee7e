package giftstore

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

type Store struct{}

func New() *Store { return &Store{} }

// Upsert seeds a gift row. The issued-number counter of an existing gift is kept.
func (s *Store) Upsert(ctx context.Context, q db_client.Querier, id, name string) error {
	const ups = `
	  INSERT INTO gifts (id, name, last_issued_number)
	       VALUES ($1, $2, 0)
	  ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := q.ExecContext(ctx, ups, id, name); err != nil {
		return fmt.Errorf("upsert gift %s: %w", id, err)
	}
	return nil
}

// FetchByID returns nil when the gift does not exist.
func (s *Store) FetchByID(ctx context.Context, q db_client.Querier, id string) (*models.Gift, error) {
	g := &models.Gift{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, last_issued_number FROM gifts WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.LastIssuedNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch gift %s: %w", id, err)
	}
	return g, nil
}

// ReserveNumbers bumps the gift's counter by n and returns the first of the n
// serial numbers now owned by the caller's transaction.
func (s *Store) ReserveNumbers(ctx context.Context, q db_client.Querier, giftID string, n int) (int64, error) {
	var last int64
	err := q.QueryRowContext(ctx,
		`UPDATE gifts SET last_issued_number = last_issued_number + $2 WHERE id = $1 RETURNING last_issued_number`,
		giftID, n,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reserve %d numbers of gift %s: gift missing: %w", n, giftID, err)
	}
	if err != nil {
		return 0, fmt.Errorf("reserve %d numbers of gift %s: %w", n, giftID, err)
	}
	return last - int64(n) + 1, nil
}

type Allocation struct {
	UserID int64
	Number int64
}

// Allocate records one user_gifts row per allocation.
func (s *Store) Allocate(ctx context.Context, q db_client.Querier, giftID string, allocs []Allocation, now time.Time) error {
	const ins = `
	  INSERT INTO user_gifts (id, user_id, gift_id, number, created_at)
	       VALUES ($1, $2, $3, $4, $5)`
	at := models.DBTime(now)
	for _, a := range allocs {
		if _, err := q.ExecContext(ctx, ins, uuid.NewString(), a.UserID, giftID, a.Number, at); err != nil {
			return fmt.Errorf("allocate gift %s #%d to %d: %w", giftID, a.Number, a.UserID, err)
		}
	}
	return nil
}

// FetchUserGifts lists the user's allocations, newest first.
func (s *Store) FetchUserGifts(ctx context.Context, q db_client.Querier, userID int64) ([]models.UserGift, error) {
	const sel = `
	  SELECT ug.id, ug.user_id, ug.gift_id, g.name, ug.number, ug.created_at
	    FROM user_gifts ug
	    JOIN gifts g ON g.id = ug.gift_id
	   WHERE ug.user_id = $1
	   ORDER BY ug.created_at DESC, ug.number DESC`
	rows, err := q.QueryContext(ctx, sel, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch gifts of %d: %w", userID, err)
	}
	defer rows.Close()

	list := []models.UserGift{}
	for rows.Next() {
		var ug models.UserGift
		if err := rows.Scan(&ug.ID, &ug.UserID, &ug.GiftID, &ug.GiftName, &ug.Number, &ug.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, ug)
	}
	return list, rows.Err()
}
