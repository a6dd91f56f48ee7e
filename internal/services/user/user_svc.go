package user

import (
	"context"

	"giftauction/internal/database/db_client"
	"giftauction/internal/models"
)

type Ledger interface {
	Create(ctx context.Context, q db_client.Querier, userID int64) error
	Restore(ctx context.Context, q db_client.Querier, userID int64) error
	FetchByID(ctx context.Context, q db_client.Querier, userID int64) (*models.User, error)
}

type IUserService interface {
	// EnsureUser registers the user on first contact; restore resets the
	// balance to the initial amount.
	EnsureUser(ctx context.Context, userID int64, restore bool) error
	GetBalance(ctx context.Context, userID int64) (int64, error)
}

type userService struct {
	tx     db_client.Transactor
	ledger Ledger
}

func NewUserService(tx db_client.Transactor, l Ledger) IUserService {
	return &userService{tx: tx, ledger: l}
}

func (svc *userService) EnsureUser(ctx context.Context, userID int64, restore bool) error {
	return svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		if err := svc.ledger.Create(ctx, q, userID); err != nil {
			return err
		}
		if !restore {
			return nil
		}
		return svc.ledger.Restore(ctx, q, userID)
	})
}

// GetBalance is 0 for users that were never seen.
func (svc *userService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := svc.tx.RunTx(ctx, func(ctx context.Context, q db_client.Querier) error {
		u, err := svc.ledger.FetchByID(ctx, q, userID)
		if err != nil || u == nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	return balance, err
}
