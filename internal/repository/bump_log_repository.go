package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type BumpLogRepository struct {
	db *sql.DB
}

func NewBumpLogRepository(db *sql.DB) *BumpLogRepository {
	return &BumpLogRepository{db: db}
}

func (r *BumpLogRepository) Append(ctx context.Context, entry models.BumpLog) error {
	const query = `
INSERT INTO bump_logs (listing_id, time_slot, success, error_message, created_at)
VALUES (?, ?, ?, NULLIF(?, ''), ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.ListingID, entry.TimeSlot, entry.Success, entry.Error, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert bump log: %w", err)
	}
	return nil
}

func (r *BumpLogRepository) ListForListing(ctx context.Context, listingID int64, limit int) ([]models.BumpLog, error) {
	const query = `
SELECT id, listing_id, time_slot, success, COALESCE(error_message, ''), created_at
FROM bump_logs WHERE listing_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bump logs: %w", err)
	}
	defer rows.Close()

	var logs []models.BumpLog
	for rows.Next() {
		var l models.BumpLog
		if err := rows.Scan(&l.ID, &l.ListingID, &l.TimeSlot, &l.Success, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bump log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
