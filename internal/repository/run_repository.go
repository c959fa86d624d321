package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

// RunRepository manages ingestion run lifecycle records.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(ctx context.Context, run models.IngestionRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	const query = `INSERT INTO ingestion_runs (id, status, started_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRepository) FinishRun(ctx context.Context, run models.IngestionRun) error {
	const query = `
UPDATE ingestion_runs
SET status = ?, imported = ?, updated = ?, skipped = ?, errors = ?, error_sample = NULLIF(?, ''), finished_at = ?
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, run.Status, run.Imported, run.Updated, run.Skipped, run.Errors, run.ErrorLog, run.FinishedAt, run.ID); err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	const query = `
SELECT id, status, imported, updated, skipped, errors, COALESCE(error_sample, ''), started_at, finished_at
FROM ingestion_runs
ORDER BY started_at DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.IngestionRun
	for rows.Next() {
		var run models.IngestionRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Status, &run.Imported, &run.Updated, &run.Skipped, &run.Errors, &run.ErrorLog, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
