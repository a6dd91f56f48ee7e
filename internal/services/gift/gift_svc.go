package gift

import (
	"context"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"
)

type GiftStore interface {
	FetchUserGifts(ctx context.Context, q db_client.Querier, userID int64) ([]models.UserGift, error)
}

type IGiftService interface {
	GetUserAllocations(ctx context.Context, userID int64) ([]models.UserGift, error)
}

type giftService struct {
	tx    db_client.Transactor
	gifts GiftStore
}

func NewGiftService(tx db_client.Transactor, gs GiftStore) IGiftService {
	return &giftService{tx: tx, gifts: gs}
}

func (svc *giftService) GetUserAllocations(ctx context.Context, userID int64) ([]models.UserGift, error) {
	var list []models.UserGift
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		var err error
		list, err = svc.gifts.FetchUserGifts(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.UserGift{}
	}
	return list, nil
}
