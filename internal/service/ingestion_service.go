package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/simodepertis/frontend-sub001/internal/ingest"
	"github.com/simodepertis/frontend-sub001/internal/lock"
	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/notify"
	"github.com/simodepertis/frontend-sub001/internal/scraper"
)

const (
	ingestLock     = "listingd:ingest"
	maxErrorSample = 20
)

type RunStore interface {
	CreateRun(ctx context.Context, run models.IngestionRun) error
	FinishRun(ctx context.Context, run models.IngestionRun) error
	ListRuns(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

type Crawler interface {
	Run(ctx context.Context, sources []scraper.SourceConfig, opts ingest.RunOptions) (ingest.Report, error)
}

// SourceLoader returns the configured sources; it is called at the start of
// every run so edits to the sources file need no restart.
type SourceLoader func() ([]scraper.SourceConfig, error)

type IngestionService struct {
	runs     RunStore
	crawler  Crawler
	sources  SourceLoader
	locker   lock.Locker
	notifier notify.Notifier
	defaults ingest.RunOptions
	now      func() time.Time
	log      *slog.Logger
}

func NewIngestionService(runs RunStore, crawler Crawler, sources SourceLoader, locker lock.Locker,
	notifier notify.Notifier, defaults ingest.RunOptions, log *slog.Logger) *IngestionService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &IngestionService{
		runs:     runs,
		crawler:  crawler,
		sources:  sources,
		locker:   locker,
		notifier: notifier,
		defaults: defaults,
		now:      time.Now,
		log:      log,
	}
}

type RunRequest struct {
	// Sources restricts the run to the named sources; empty means all.
	Sources []string
	Limit   int
	OwnerID *int64
}

type RunResult struct {
	Run    models.IngestionRun `json:"run"`
	Report ingest.Report       `json:"report"`
}

// Run performs one ingestion pass and records it as an ingestion run.
func (s *IngestionService) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	sources, err := s.sources()
	if err != nil {
		return RunResult{}, fmt.Errorf("load sources: %w", err)
	}
	sources, err = selectSources(sources, req.Sources)
	if err != nil {
		return RunResult{}, err
	}

	unlock, err := s.locker.TryLock(ctx, ingestLock)
	if errors.Is(err, lock.ErrNotAcquired) {
		return RunResult{}, ErrRunInProgress
	}
	if err != nil {
		return RunResult{}, fmt.Errorf("acquire ingest lock: %w", err)
	}
	defer unlock()

	run := models.IngestionRun{
		ID:        uuid.NewString(),
		Status:    models.RunRunning,
		StartedAt: s.now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return RunResult{}, err
	}
	s.log.Info("ingestion run started", "run_id", run.ID, "sources", len(sources))

	opts := s.defaults
	if req.Limit > 0 {
		opts.LimitPerSource = req.Limit
	}
	if req.OwnerID != nil {
		opts.OwnerID = req.OwnerID
	}
	report, runErr := s.crawler.Run(ctx, sources, opts)

	finished := s.now()
	run.FinishedAt = &finished
	run.Imported = report.Imported
	run.Updated = report.Updated
	run.Skipped = report.Skipped
	run.Errors = len(report.Errors)
	run.Status = runStatus(report, runErr)
	run.ErrorLog = errorSample(report.Errors, runErr)

	// The run row is closed even when the caller's context was cancelled.
	if err := s.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		s.log.Error("finish ingestion run", "run_id", run.ID, "err", err)
	}

	s.log.Info("ingestion run finished", "run_id", run.ID, "status", run.Status,
		"imported", run.Imported, "updated", run.Updated, "skipped", run.Skipped, "errors", run.Errors)
	if run.Status != models.RunSuccess {
		s.notifier.Notify(context.WithoutCancel(ctx), fmt.Sprintf("ingestion run %s finished %s: imported=%d updated=%d skipped=%d errors=%d",
			run.ID, run.Status, run.Imported, run.Updated, run.Skipped, run.Errors))
	}

	return RunResult{Run: run, Report: report}, runErr
}

func (s *IngestionService) ListRuns(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.runs.ListRuns(ctx, limit)
}

func selectSources(all []scraper.SourceConfig, names []string) ([]scraper.SourceConfig, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]scraper.SourceConfig, len(all))
	for _, src := range all {
		byName[src.Name] = src
	}
	selected := make([]scraper.SourceConfig, 0, len(names))
	for _, name := range names {
		src, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, name)
		}
		selected = append(selected, src)
	}
	return selected, nil
}

func runStatus(report ingest.Report, err error) models.RunStatus {
	switch {
	case err != nil:
		if report.Imported+report.Updated > 0 {
			return models.RunPartial
		}
		return models.RunFailed
	case len(report.Errors) == 0:
		return models.RunSuccess
	case report.Imported+report.Updated+report.Skipped > 0:
		return models.RunPartial
	default:
		return models.RunFailed
	}
}

func errorSample(items []ingest.ItemError, runErr error) string {
	sample := items
	if len(sample) > maxErrorSample {
		sample = sample[:maxErrorSample]
	}
	if runErr != nil {
		sample = append(append([]ingest.ItemError{}, sample...), ingest.ItemError{Message: runErr.Error()})
	}
	if len(sample) == 0 {
		return ""
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return ""
	}
	return string(raw)
}
