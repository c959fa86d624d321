package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/lock"
	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/repository"
	"github.com/simodepertis/frontend-sub001/internal/schedule"
)

const bumpTickLock = "listingd:bump-tick"

type DueListingStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.Listing, error)
	ApplyBump(ctx context.Context, u repository.BumpUpdate) error
}

type ScheduleReader interface {
	NextPending(ctx context.Context, listingID int64, after time.Time) (*models.ScheduleEntry, error)
	DueEntries(ctx context.Context, listingID int64, now time.Time) ([]models.ScheduleEntry, error)
}

type BumpLogWriter interface {
	Append(ctx context.Context, entry models.BumpLog) error
}

type JobMetrics interface {
	BumpAttempt(result string)
	TickSkipped(job string)
	ExpiredListings(n int64)
	ExpiredPurchases(n int64)
}

// TickReport summarises one executor pass.
type TickReport struct {
	Skipped    bool `json:"skipped"`
	Candidates int  `json:"candidates"`
	Bumped     int  `json:"bumped"`
	OutOfSlot  int  `json:"out_of_slot"`
	Failed     int  `json:"failed"`
}

// Executor resurfaces listings whose next bump is due.
type Executor struct {
	listings  DueListingStore
	schedules ScheduleReader
	products  ProductReader
	logs      BumpLogWriter
	locker    lock.Locker
	metrics   JobMetrics
	loc       *time.Location
	batchSize int
	slotGrace time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewExecutor(listings DueListingStore, schedules ScheduleReader, products ProductReader, logs BumpLogWriter,
	locker lock.Locker, metrics JobMetrics, loc *time.Location, batchSize int, slotGrace time.Duration, log *slog.Logger) *Executor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Executor{
		listings:  listings,
		schedules: schedules,
		products:  products,
		logs:      logs,
		locker:    locker,
		metrics:   metrics,
		loc:       loc,
		batchSize: batchSize,
		slotGrace: slotGrace,
		now:       time.Now,
		log:       log,
	}
}

// Tick runs one pass. An overlapping pass is skipped, not queued.
func (e *Executor) Tick(ctx context.Context) (TickReport, error) {
	unlock, err := e.locker.TryLock(ctx, bumpTickLock)
	if errors.Is(err, lock.ErrNotAcquired) {
		e.log.Debug("bump tick already running, skipping")
		e.metrics.TickSkipped("bump-tick")
		return TickReport{Skipped: true}, nil
	}
	if err != nil {
		return TickReport{}, fmt.Errorf("acquire bump lock: %w", err)
	}
	defer unlock()

	now := e.now()
	due, err := e.listings.FindDue(ctx, now, e.batchSize)
	if err != nil {
		return TickReport{}, err
	}

	report := TickReport{Candidates: len(due)}
	products := make(map[string]*models.PromotionProduct)
	for _, listing := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		product, err := e.product(ctx, products, listing.BumpPackage)
		if err != nil {
			e.fail(ctx, &report, listing, err)
			continue
		}

		in, err := schedule.InSlot(*product, listing.BumpSlot, now, e.slotGrace, e.loc)
		if err != nil {
			e.log.Warn("unreadable bump slot, treating as any time", "listing_id", listing.ID, "slot", listing.BumpSlot, "err", err)
			in = true
		}
		if !in {
			report.OutOfSlot++
			continue
		}

		if err := e.bump(ctx, listing, *product, now); err != nil {
			e.fail(ctx, &report, listing, err)
			continue
		}
		report.Bumped++
		e.metrics.BumpAttempt("success")
		e.appendLog(ctx, models.BumpLog{ListingID: listing.ID, TimeSlot: listing.BumpSlot, Success: true, CreatedAt: now})
	}

	if report.Candidates > 0 {
		e.log.Info("bump tick finished", "candidates", report.Candidates, "bumped", report.Bumped,
			"out_of_slot", report.OutOfSlot, "failed", report.Failed)
	}
	return report, nil
}

func (e *Executor) bump(ctx context.Context, listing models.Listing, product models.PromotionProduct, now time.Time) error {
	due, err := e.schedules.DueEntries(ctx, listing.ID, now)
	if err != nil {
		return err
	}
	missed := 0
	if len(due) > 1 {
		missed = len(due) - 1
	}

	var next *time.Time
	pending, err := e.schedules.NextPending(ctx, listing.ID, now)
	if err != nil {
		return err
	}
	if pending != nil {
		next = &pending.RunAt
	} else {
		from := now
		if listing.NextBumpAt != nil {
			from = *listing.NextBumpAt
		}
		if t, ok := schedule.Increment(product, listing.BumpSlot, from, e.loc); ok {
			if !t.After(now) {
				t, _ = schedule.Increment(product, listing.BumpSlot, now, e.loc)
			}
			next = &t
		}
	}

	return e.listings.ApplyBump(ctx, repository.BumpUpdate{
		ListingID:     listing.ID,
		ExpectedCount: listing.BumpCount,
		Missed:        missed,
		Now:           now,
		NextBumpAt:    next,
	})
}

func (e *Executor) product(ctx context.Context, cache map[string]*models.PromotionProduct, code string) (*models.PromotionProduct, error) {
	if p, ok := cache[code]; ok {
		return p, nil
	}
	p, err := e.products.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrProductNotFound, code)
	}
	cache[code] = p
	return p, nil
}

func (e *Executor) fail(ctx context.Context, report *TickReport, listing models.Listing, err error) {
	report.Failed++
	result := "error"
	if errors.Is(err, repository.ErrConflict) {
		result = "conflict"
	}
	e.metrics.BumpAttempt(result)
	e.log.Warn("bump failed", "listing_id", listing.ID, "err", err)
	e.appendLog(ctx, models.BumpLog{
		ListingID: listing.ID,
		TimeSlot:  listing.BumpSlot,
		Success:   false,
		Error:     err.Error(),
		CreatedAt: e.now(),
	})
}

func (e *Executor) appendLog(ctx context.Context, entry models.BumpLog) {
	if err := e.logs.Append(ctx, entry); err != nil {
		e.log.Error("append bump log", "listing_id", entry.ListingID, "err", err)
	}
}
