package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/classifier"
	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/normalize"
	"github.com/simodepertis/frontend-sub001/internal/repository"
)

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

type Result struct {
	Outcome Outcome
	ID      int64
	Reason  string
}

// ListingStore is the persistence the upsert engine needs.
type ListingStore interface {
	FindBySourceID(ctx context.Context, sourceID string) (*models.Listing, error)
	FindByContact(ctx context.Context, category models.Category, city, phone, whatsapp string) (*models.Listing, error)
	Create(ctx context.Context, l *models.Listing) error
	UpdateContent(ctx context.Context, l *models.Listing) error
}

type PhotoMirror interface {
	Mirror(ctx context.Context, folder string, photos []string) []string
}

type UpserterConfig struct {
	// ContactDedup enables the secondary (category, city, phone|whatsapp) lookup.
	ContactDedup bool
	TTL          time.Duration
	// OwnerID owns created listings unless the record carries its own; nil for bot imports.
	OwnerID    *int64
	Classifier classifier.Classifier
	Mirror     PhotoMirror
	Now        func() time.Time
}

type Upserter struct {
	store ListingStore
	cfg   UpserterConfig
	log   *slog.Logger
}

func NewUpserter(store ListingStore, cfg UpserterConfig, log *slog.Logger) *Upserter {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classifier.Allow{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Upserter{store: store, cfg: cfg, log: log}
}

// Upsert persists a normalised record: update when its fingerprint (or, with
// contact dedup, its contact key) is already known, create otherwise.
func (u *Upserter) Upsert(ctx context.Context, rec models.Listing) (Result, error) {
	if !normalize.ContentValid(rec) {
		return Result{Outcome: OutcomeSkipped, Reason: "title too short"}, nil
	}
	verdict, err := u.cfg.Classifier.Classify(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	if !verdict.Allowed {
		return Result{Outcome: OutcomeSkipped, Reason: verdict.Reason}, nil
	}

	rec.SourceID = SourceID(rec.Category, rec.SourceURL)

	existing, err := u.store.FindBySourceID(ctx, rec.SourceID)
	if err != nil {
		return Result{}, err
	}
	if existing == nil && u.cfg.ContactDedup && (rec.Phone != "" || rec.WhatsApp != "") {
		existing, err = u.store.FindByContact(ctx, rec.Category, rec.City, rec.Phone, rec.WhatsApp)
		if err != nil {
			return Result{}, err
		}
		if existing != nil && u.log != nil {
			u.log.Debug("contact match", "listing_id", existing.ID, "source_id", rec.SourceID)
		}
	}
	if existing != nil {
		return u.update(ctx, existing, rec)
	}
	return u.create(ctx, rec)
}

func (u *Upserter) create(ctx context.Context, rec models.Listing) (Result, error) {
	now := u.cfg.Now()
	rec.IsActive = true
	rec.PublishedAt = now
	rec.ExpiresAt = normalize.ExpiresAt(now, u.cfg.TTL)
	if rec.UserID == nil {
		rec.UserID = u.cfg.OwnerID
	}
	if u.cfg.Mirror != nil && len(rec.Photos) > 0 {
		rec.Photos = u.cfg.Mirror.Mirror(ctx, rec.SourceID, rec.Photos)
	}

	err := u.store.Create(ctx, &rec)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent insert of the same fingerprint.
		existing, findErr := u.store.FindBySourceID(ctx, rec.SourceID)
		if findErr != nil {
			return Result{}, findErr
		}
		if existing == nil {
			return Result{}, fmt.Errorf("duplicate listing %s not found after conflict", rec.SourceID)
		}
		return u.update(ctx, existing, rec)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeCreated, ID: rec.ID}, nil
}

// update refreshes content and provenance. Fields the new scrape lacks keep
// their stored value, and promotion state is never touched.
func (u *Upserter) update(ctx context.Context, existing *models.Listing, rec models.Listing) (Result, error) {
	l := *existing
	l.SourceID = rec.SourceID
	l.SourceURL = rec.SourceURL
	l.Title = rec.Title
	if rec.Description != "" {
		l.Description = rec.Description
	}
	if rec.Zone != "" {
		l.Zone = rec.Zone
	}
	if rec.Phone != "" {
		l.Phone = rec.Phone
	}
	if rec.WhatsApp != "" {
		l.WhatsApp = rec.WhatsApp
	}
	if rec.Age != 0 {
		l.Age = rec.Age
	}
	if rec.Price != 0 {
		l.Price = rec.Price
	}
	// Mirrored photos are kept; re-uploading on every crawl would duplicate objects.
	if len(rec.Photos) > 0 && (u.cfg.Mirror == nil || len(l.Photos) == 0) {
		l.Photos = rec.Photos
		if u.cfg.Mirror != nil {
			l.Photos = u.cfg.Mirror.Mirror(ctx, l.SourceID, l.Photos)
		}
	}

	if err := u.store.UpdateContent(ctx, &l); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeUpdated, ID: l.ID}, nil
}
