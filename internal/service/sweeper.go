package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/lock"
)

const expirySweepLock = "listingd:expiry-sweep"

type ListingExpirer interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type PurchaseExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type SweepReport struct {
	Skipped          bool  `json:"skipped"`
	ExpiredPurchases int64 `json:"expired_purchases"`
	ExpiredListings  int64 `json:"expired_listings"`
}

// Sweeper hides listings past their expiry or out of bumps, on its own cadence.
type Sweeper struct {
	listings  ListingExpirer
	purchases PurchaseExpirer
	locker    lock.Locker
	metrics   JobMetrics
	now       func() time.Time
	log       *slog.Logger
}

func NewSweeper(listings ListingExpirer, purchases PurchaseExpirer, locker lock.Locker, metrics JobMetrics, log *slog.Logger) *Sweeper {
	return &Sweeper{
		listings:  listings,
		purchases: purchases,
		locker:    locker,
		metrics:   metrics,
		now:       time.Now,
		log:       log,
	}
}

func (s *Sweeper) Tick(ctx context.Context) (SweepReport, error) {
	unlock, err := s.locker.TryLock(ctx, expirySweepLock)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.log.Debug("expiry sweep already running, skipping")
		s.metrics.TickSkipped("expiry-sweep")
		return SweepReport{Skipped: true}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer unlock()

	now := s.now()
	purchases, err := s.purchases.ExpireDue(ctx, now)
	if err != nil {
		return SweepReport{}, err
	}
	s.metrics.ExpiredPurchases(purchases)

	listings, err := s.listings.DeactivateExpired(ctx, now)
	if err != nil {
		return SweepReport{ExpiredPurchases: purchases}, err
	}
	s.metrics.ExpiredListings(listings)

	s.log.Info("expiry sweep finished", "expired_purchases", purchases, "expired_listings", listings)
	return SweepReport{ExpiredPurchases: purchases, ExpiredListings: listings}, nil
}
