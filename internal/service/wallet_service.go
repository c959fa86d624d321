package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/repository"
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	AddCredits(ctx context.Context, userID int64, delta int) error
}

// WalletService adjusts the credits users spend on promotion products.
type WalletService struct {
	users UserStore
}

func NewWalletService(users UserStore) *WalletService {
	return &WalletService{users: users}
}

// Grant adds amount credits to a wallet; a negative amount trims it, never below zero.
func (s *WalletService) Grant(ctx context.Context, userID int64, amount int) (*models.User, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must not be zero", ErrInvalidInput)
	}
	if err := s.users.AddCredits(ctx, userID, amount); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Balance(ctx, userID)
}

func (s *WalletService) Balance(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
