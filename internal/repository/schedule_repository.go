package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type ScheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, purchase_id, listing_id, window_tag, run_at, status`

func scanSchedule(row rowScanner) (models.ScheduleEntry, error) {
	var e models.ScheduleEntry
	err := row.Scan(&e.ID, &e.PurchaseID, &e.ListingID, &e.Window, &e.RunAt, &e.Status)
	return e, err
}

// NextPending returns the earliest pending entry of a listing strictly after the given instant.
func (r *ScheduleRepository) NextPending(ctx context.Context, listingID int64, after time.Time) (*models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM bump_schedules
WHERE listing_id = ? AND status = 'PENDING' AND run_at > ?
ORDER BY run_at ASC
LIMIT 1`
	e, err := scanSchedule(r.db.QueryRowContext(ctx, query, listingID, after))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next pending schedule: %w", err)
	}
	return &e, nil
}

// DueEntries lists pending entries of a listing that are already due.
func (r *ScheduleRepository) DueEntries(ctx context.Context, listingID int64, now time.Time) ([]models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM bump_schedules
WHERE listing_id = ? AND status = 'PENDING' AND run_at <= ?
ORDER BY run_at ASC`
	return r.list(ctx, query, listingID, now)
}

func (r *ScheduleRepository) ListForPurchase(ctx context.Context, purchaseID int64) ([]models.ScheduleEntry, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM bump_schedules WHERE purchase_id = ? ORDER BY run_at ASC`
	return r.list(ctx, query, purchaseID)
}

func (r *ScheduleRepository) list(ctx context.Context, query string, args ...any) ([]models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var entries []models.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// insertSchedules bulk inserts entries inside an open transaction.
func insertSchedules(ctx context.Context, tx *sql.Tx, purchaseID, listingID int64, entries []models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const chunk = 200
	for start := 0; start < len(entries); start += chunk {
		end := start + chunk
		if end > len(entries) {
			end = len(entries)
		}
		placeholders := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*5)
		for _, e := range entries[start:end] {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?)")
			args = append(args, purchaseID, listingID, e.Window, e.RunAt, models.SchedulePending)
		}
		query := `INSERT INTO bump_schedules (purchase_id, listing_id, window_tag, run_at, status) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert schedules [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}
