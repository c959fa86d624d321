package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT id, email, credits, created_at, updated_at FROM users WHERE id = ?`
	var u models.User
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// AddCredits tops up (or, with a negative delta, trims) a wallet without letting it go negative.
func (r *UserRepository) AddCredits(ctx context.Context, userID int64, delta int) error {
	const query = `UPDATE users SET credits = GREATEST(credits + ?, 0), updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, delta, userID)
	if err != nil {
		return fmt.Errorf("update credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credits rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
