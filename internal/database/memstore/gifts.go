package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"giftauction/internal/database/db_client"
	"giftauction/internal/database/giftstore"
	"giftauction/internal/models"

	"github.com/google/uuid"
)

type Gifts struct{ db *DB }

func (s *Gifts) Upsert(_ context.Context, q db_client.Querier, id, name string) error {
	return s.db.do(q, func(st *state) error {
		g := st.gifts[id]
		g.ID, g.Name = id, name
		st.gifts[id] = g
		return nil
	})
}

func (s *Gifts) FetchByID(_ context.Context, q db_client.Querier, id string) (*models.Gift, error) {
	var out *models.Gift
	err := s.db.do(q, func(st *state) error {
		if g, ok := st.gifts[id]; ok {
			out = &g
		}
		return nil
	})
	return out, err
}

func (s *Gifts) ReserveNumbers(_ context.Context, q db_client.Querier, giftID string, n int) (int64, error) {
	var start int64
	err := s.db.do(q, func(st *state) error {
		g, ok := st.gifts[giftID]
		if !ok {
			return fmt.Errorf("reserve %d numbers of gift %s: gift missing", n, giftID)
		}
		g.LastIssuedNumber += int64(n)
		st.gifts[giftID] = g
		start = g.LastIssuedNumber - int64(n) + 1
		return nil
	})
	return start, err
}

func (s *Gifts) Allocate(_ context.Context, q db_client.Querier, giftID string, allocs []giftstore.Allocation, now time.Time) error {
	return s.db.do(q, func(st *state) error {
		at := models.DBTime(now)
		for _, a := range allocs {
			for _, ug := range st.userGifts {
				if ug.GiftID == giftID && ug.Number == a.Number {
					return fmt.Errorf("allocate gift %s #%d: number already issued", giftID, a.Number)
				}
			}
			st.userGifts = append(st.userGifts, models.UserGift{
				ID: uuid.NewString(), UserID: a.UserID, GiftID: giftID, Number: a.Number, CreatedAt: at,
			})
		}
		return nil
	})
}

func (s *Gifts) FetchUserGifts(_ context.Context, q db_client.Querier, userID int64) ([]models.UserGift, error) {
	list := []models.UserGift{}
	err := s.db.do(q, func(st *state) error {
		for _, ug := range st.userGifts {
			if ug.UserID == userID {
				ug.GiftName = st.gifts[ug.GiftID].Name
				list = append(list, ug)
			}
		}
		return nil
	})
	slices.SortFunc(list, func(a, b models.UserGift) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Number, a.Number)
	})
	return list, err
}
