package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/repository"
	"github.com/simodepertis/frontend-sub001/internal/schedule"
)

type ListingReader interface {
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
}

type ProductReader interface {
	GetByID(ctx context.Context, id int64) (*models.PromotionProduct, error)
	GetByCode(ctx context.Context, code string) (*models.PromotionProduct, error)
}

type PurchaseStore interface {
	Create(ctx context.Context, in repository.PurchaseCreate) (int64, int, error)
	GetActiveForListing(ctx context.Context, userID, listingID int64) (*models.Purchase, error)
	Replace(ctx context.Context, in repository.Reschedule) error
}

type PurchaseScheduleReader interface {
	ListForPurchase(ctx context.Context, purchaseID int64) ([]models.ScheduleEntry, error)
}

type BumpLogReader interface {
	ListForListing(ctx context.Context, listingID int64, limit int) ([]models.BumpLog, error)
}

// BumpService sells promotion products and lets owners move their bump slots.
type BumpService struct {
	listings  ListingReader
	products  ProductReader
	purchases PurchaseStore
	schedules PurchaseScheduleReader
	logs      BumpLogReader
	generator *schedule.Generator
	now       func() time.Time
	log       *slog.Logger
}

func NewBumpService(listings ListingReader, products ProductReader, purchases PurchaseStore,
	schedules PurchaseScheduleReader, logs BumpLogReader, generator *schedule.Generator, log *slog.Logger) *BumpService {
	return &BumpService{
		listings:  listings,
		products:  products,
		purchases: purchases,
		schedules: schedules,
		logs:      logs,
		generator: generator,
		now:       time.Now,
		log:       log,
	}
}

type PurchaseRequest struct {
	UserID      int64
	ListingID   int64
	ProductCode string
	Template    schedule.Template
}

type PurchaseResult struct {
	PurchaseID    int64      `json:"purchase_id"`
	WalletBalance int        `json:"wallet_balance"`
	Scheduled     int        `json:"scheduled"`
	TimeSlot      string     `json:"time_slot"`
	NextBumpAt    *time.Time `json:"next_bump_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// PurchaseBump debits the wallet and materialises the product's schedule for
// the listing. Nothing is persisted when any step fails.
func (s *BumpService) PurchaseBump(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	if _, err := s.ownedListing(ctx, req.UserID, req.ListingID); err != nil {
		return PurchaseResult{}, err
	}
	product, err := s.products.GetByCode(ctx, req.ProductCode)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.Active {
		return PurchaseResult{}, ErrProductNotFound
	}

	loc := s.generator.Location()
	startedAt := s.now().In(loc)
	expiresAt := startedAt.AddDate(0, 0, product.DurationDays)
	entries := s.generator.Generate(schedule.Request{Product: *product, StartedAt: startedAt, Template: req.Template})
	encoded, err := req.Template.Encode()
	if err != nil {
		return PurchaseResult{}, err
	}
	label := schedule.Label(*product, entries, loc)

	in := repository.PurchaseCreate{
		UserID:       req.UserID,
		ListingID:    req.ListingID,
		Product:      *product,
		StartedAt:    startedAt,
		ExpiresAt:    expiresAt,
		SlotTemplate: encoded,
		Entries:      entries,
		Promotion:    repository.Promotion{Package: product.Code, Slot: label, Now: startedAt},
	}
	if product.Kind == models.ProductTopFixed {
		in.Promotion.Pinned = true
		in.Promotion.PinnedUntil = expiresAt
	}

	purchaseID, balance, err := s.purchases.Create(ctx, in)
	switch {
	case errors.Is(err, repository.ErrInsufficientCredits):
		return PurchaseResult{}, ErrInsufficientCredits
	case errors.Is(err, repository.ErrNotFound):
		return PurchaseResult{}, ErrUserNotFound
	case errors.Is(err, repository.ErrScheduleActive):
		return PurchaseResult{}, ErrPromotionActive
	case err != nil:
		return PurchaseResult{}, fmt.Errorf("create purchase: %w", err)
	}

	res := PurchaseResult{
		PurchaseID:    purchaseID,
		WalletBalance: balance,
		Scheduled:     len(entries),
		TimeSlot:      label,
		ExpiresAt:     expiresAt,
	}
	if len(entries) > 0 {
		first := entries[0].RunAt
		res.NextBumpAt = &first
	}
	if s.log != nil {
		s.log.Info("bump purchased", "purchase_id", purchaseID, "listing_id", req.ListingID, "product", product.Code, "entries", len(entries))
	}
	return res, nil
}

type RescheduleResult struct {
	Scheduled  int        `json:"scheduled"`
	TimeSlot   string     `json:"time_slot"`
	NextBumpAt *time.Time `json:"next_bump_at,omitempty"`
}

// RescheduleBump regenerates the remaining schedule of the listing's active
// purchase with a new template, anchored to the purchase's original start.
func (s *BumpService) RescheduleBump(ctx context.Context, userID, listingID int64, tpl schedule.Template) (RescheduleResult, error) {
	if _, err := s.ownedListing(ctx, userID, listingID); err != nil {
		return RescheduleResult{}, err
	}
	purchase, err := s.purchases.GetActiveForListing(ctx, userID, listingID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if purchase == nil {
		return RescheduleResult{}, ErrNoActivePurchase
	}
	product, err := s.products.GetByID(ctx, purchase.ProductID)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return RescheduleResult{}, ErrProductNotFound
	}
	if product.Kind != models.ProductDay && product.Kind != models.ProductNight {
		return RescheduleResult{}, ErrNotReschedulable
	}

	loc := s.generator.Location()
	now := s.now().In(loc)
	existing, err := s.schedules.ListForPurchase(ctx, purchase.ID)
	if err != nil {
		return RescheduleResult{}, err
	}
	entries := s.generator.Regenerate(schedule.Request{Product: *product, StartedAt: purchase.StartedAt, Template: tpl}, now, existing)
	encoded, err := tpl.Encode()
	if err != nil {
		return RescheduleResult{}, err
	}
	label := schedule.Label(*product, entries, loc)

	if err := s.purchases.Replace(ctx, repository.Reschedule{
		PurchaseID:   purchase.ID,
		ListingID:    listingID,
		After:        now,
		SlotTemplate: encoded,
		Entries:      entries,
		Package:      product.Code,
		Slot:         label,
	}); err != nil {
		return RescheduleResult{}, fmt.Errorf("replace schedule: %w", err)
	}

	res := RescheduleResult{Scheduled: len(entries), TimeSlot: label}
	if len(entries) > 0 {
		first := entries[0].RunAt
		res.NextBumpAt = &first
	}
	return res, nil
}

const statusLogLimit = 20

type BumpStatus struct {
	ListingID  int64                  `json:"listing_id"`
	Package    string                 `json:"bump_package,omitempty"`
	TimeSlot   string                 `json:"time_slot"`
	Active     bool                   `json:"is_active"`
	BumpCount  int                    `json:"bump_count"`
	MaxBumps   int                    `json:"max_bumps"`
	NextBumpAt *time.Time             `json:"next_bump_at,omitempty"`
	LastBumpAt *time.Time             `json:"last_bump_at,omitempty"`
	Purchase   *models.Purchase       `json:"purchase,omitempty"`
	Schedule   []models.ScheduleEntry `json:"schedule"`
	Recent     []models.BumpLog       `json:"recent"`
}

// Status reports the promotion state of a listing to its owner: the active
// purchase with its schedule and the latest bump attempts.
func (s *BumpService) Status(ctx context.Context, userID, listingID int64) (BumpStatus, error) {
	listing, err := s.ownedListing(ctx, userID, listingID)
	if err != nil {
		return BumpStatus{}, err
	}
	status := BumpStatus{
		ListingID:  listing.ID,
		Package:    listing.BumpPackage,
		TimeSlot:   listing.BumpSlot,
		Active:     listing.IsActive,
		BumpCount:  listing.BumpCount,
		MaxBumps:   listing.MaxBumps,
		NextBumpAt: listing.NextBumpAt,
		LastBumpAt: listing.LastBumpAt,
		Schedule:   []models.ScheduleEntry{},
		Recent:     []models.BumpLog{},
	}

	purchase, err := s.purchases.GetActiveForListing(ctx, userID, listingID)
	if err != nil {
		return BumpStatus{}, err
	}
	if purchase != nil {
		status.Purchase = purchase
		entries, err := s.schedules.ListForPurchase(ctx, purchase.ID)
		if err != nil {
			return BumpStatus{}, err
		}
		if entries != nil {
			status.Schedule = entries
		}
	}

	logs, err := s.logs.ListForListing(ctx, listingID, statusLogLimit)
	if err != nil {
		return BumpStatus{}, err
	}
	if logs != nil {
		status.Recent = logs
	}
	return status, nil
}

func (s *BumpService) ownedListing(ctx context.Context, userID, listingID int64) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, ErrListingNotFound
	}
	if listing.UserID == nil || *listing.UserID != userID {
		return nil, ErrForbidden
	}
	return listing, nil
}
