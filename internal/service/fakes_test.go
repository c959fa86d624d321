package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/repository"
)

// world is an in-memory stand-in for the MySQL tables the services touch.
// Its methods follow the SQL the repositories run.
type world struct {
	mu        sync.Mutex
	nextID    int64
	listings  map[int64]*models.Listing
	products  map[int64]*models.PromotionProduct
	credits   map[int64]int
	purchases []*models.Purchase
	entries   []*models.ScheduleEntry
	logs      []models.BumpLog
	applied   int
}

func newWorld() *world {
	return &world{
		listings: map[int64]*models.Listing{},
		products: map[int64]*models.PromotionProduct{},
		credits:  map[int64]int{},
	}
}

func (w *world) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *world) addListing(l models.Listing) *models.Listing {
	l.ID = w.id()
	w.listings[l.ID] = &l
	return &l
}

func (w *world) addProduct(p models.PromotionProduct) *models.PromotionProduct {
	p.ID = w.id()
	w.products[p.ID] = &p
	return &p
}

func (w *world) addEntry(listingID int64, runAt time.Time) *models.ScheduleEntry {
	e := &models.ScheduleEntry{ID: w.id(), ListingID: listingID, Window: models.WindowDay, RunAt: runAt, Status: models.SchedulePending}
	w.entries = append(w.entries, e)
	return e
}

func (w *world) entriesOf(listingID int64) []models.ScheduleEntry {
	var out []models.ScheduleEntry
	for _, e := range w.entries {
		if e.ListingID == listingID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out
}

// pinned reports whether an ACTIVE top-fixed purchase still holds the listing.
func (w *world) pinned(listingID int64, now time.Time) bool {
	for _, p := range w.purchases {
		if p.ListingID != listingID || p.Status != models.PurchaseActive || p.ExpiresAt.Before(now) {
			continue
		}
		if pr, ok := w.products[p.ProductID]; ok && pr.Kind == models.ProductTopFixed {
			return true
		}
	}
	return false
}

func (w *world) syncPromotion(listingID int64, pkg, slot string) {
	l := w.listings[listingID]
	pending := 0
	var next *time.Time
	for _, e := range w.entries {
		if e.ListingID != listingID || e.Status != models.SchedulePending {
			continue
		}
		pending++
		if next == nil || e.RunAt.Before(*next) {
			at := e.RunAt
			next = &at
		}
	}
	l.BumpPackage = pkg
	l.BumpSlot = slot
	l.MaxBumps = l.BumpCount + pending
	l.NextBumpAt = next
	l.IsActive = true
}

type listingFake struct{ w *world }

func (f listingFake) GetByID(_ context.Context, id int64) (*models.Listing, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	l, ok := f.w.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f listingFake) FindDue(_ context.Context, now time.Time, limit int) ([]models.Listing, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.Listing
	for _, l := range f.w.listings {
		if l.IsActive && l.NextBumpAt != nil && !l.NextBumpAt.After(now) && l.BumpCount < l.MaxBumps {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextBumpAt.Equal(*out[j].NextBumpAt) {
			return out[i].NextBumpAt.Before(*out[j].NextBumpAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f listingFake) ApplyBump(_ context.Context, u repository.BumpUpdate) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	l, ok := f.w.listings[u.ListingID]
	if !ok || l.BumpCount != u.ExpectedCount || l.BumpCount >= l.MaxBumps {
		return repository.ErrConflict
	}
	f.w.applied++
	l.MaxBumps -= u.Missed
	l.BumpCount++
	l.IsActive = l.BumpCount < l.MaxBumps
	l.NextBumpAt = nil
	if l.IsActive && u.NextBumpAt != nil {
		next := *u.NextBumpAt
		l.NextBumpAt = &next
	}
	l.PublishedAt = u.Now
	last := u.Now
	l.LastBumpAt = &last

	var due []*models.ScheduleEntry
	for _, e := range f.w.entries {
		if e.ListingID == u.ListingID && e.Status == models.SchedulePending && !e.RunAt.After(u.Now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.After(due[j].RunAt) })
	for i, e := range due {
		e.Status = models.ScheduleFailed
		if i == 0 {
			e.Status = models.ScheduleDone
		}
	}
	return nil
}

func (f listingFake) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for _, l := range f.w.listings {
		if !l.IsActive {
			continue
		}
		exhausted := l.MaxBumps > 0 && l.BumpCount >= l.MaxBumps && !f.w.pinned(l.ID, now)
		if l.ExpiresAt.Before(now) || exhausted {
			l.IsActive = false
			l.NextBumpAt = nil
			n++
		}
	}
	return n, nil
}

type productFake struct{ w *world }

func (f productFake) List(context.Context) ([]models.PromotionProduct, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.PromotionProduct
	for _, p := range f.w.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f productFake) GetByID(_ context.Context, id int64) (*models.PromotionProduct, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	p, ok := f.w.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f productFake) GetByCode(_ context.Context, code string) (*models.PromotionProduct, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, p := range f.w.products {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f productFake) Create(ctx context.Context, p *models.PromotionProduct) (*models.PromotionProduct, error) {
	if existing, _ := f.GetByCode(ctx, p.Code); existing != nil {
		return nil, repository.ErrDuplicate
	}
	f.w.mu.Lock()
	created := f.w.addProduct(*p)
	f.w.mu.Unlock()
	return f.GetByID(ctx, created.ID)
}

func (f productFake) Update(ctx context.Context, p *models.PromotionProduct) (*models.PromotionProduct, error) {
	f.w.mu.Lock()
	cp := *p
	f.w.products[p.ID] = &cp
	f.w.mu.Unlock()
	return f.GetByID(ctx, p.ID)
}

func (f productFake) Deactivate(_ context.Context, id int64) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if p, ok := f.w.products[id]; ok {
		p.Active = false
	}
	return nil
}

type purchaseFake struct{ w *world }

func (f purchaseFake) Create(_ context.Context, in repository.PurchaseCreate) (int64, int, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	credits, ok := f.w.credits[in.UserID]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	if credits < in.Product.CreditsCost {
		return 0, credits, repository.ErrInsufficientCredits
	}
	if in.Promotion.Pinned {
		for _, e := range f.w.entries {
			if e.ListingID == in.ListingID && e.Status == models.SchedulePending {
				return 0, 0, repository.ErrScheduleActive
			}
		}
	}
	f.w.credits[in.UserID] = credits - in.Product.CreditsCost
	p := &models.Purchase{
		ID:           f.w.id(),
		UserID:       in.UserID,
		ListingID:    in.ListingID,
		ProductID:    in.Product.ID,
		Status:       models.PurchaseActive,
		StartedAt:    in.StartedAt,
		ExpiresAt:    in.ExpiresAt,
		SlotTemplate: in.SlotTemplate,
	}
	f.w.purchases = append(f.w.purchases, p)
	f.insert(p.ID, in.ListingID, in.Entries)
	if in.Promotion.Pinned {
		l := f.w.listings[in.ListingID]
		l.BumpPackage = in.Promotion.Package
		l.BumpSlot = in.Promotion.Slot
		l.NextBumpAt = nil
		l.PublishedAt = in.Promotion.Now
		l.IsActive = true
		l.MaxBumps = l.BumpCount
		if in.Promotion.PinnedUntil.After(l.ExpiresAt) {
			l.ExpiresAt = in.Promotion.PinnedUntil
		}
	} else {
		f.w.syncPromotion(in.ListingID, in.Promotion.Package, in.Promotion.Slot)
	}
	return p.ID, credits - in.Product.CreditsCost, nil
}

func (f purchaseFake) insert(purchaseID, listingID int64, entries []models.ScheduleEntry) {
	for _, e := range entries {
		f.w.entries = append(f.w.entries, &models.ScheduleEntry{
			ID:         f.w.id(),
			PurchaseID: purchaseID,
			ListingID:  listingID,
			Window:     e.Window,
			RunAt:      e.RunAt,
			Status:     models.SchedulePending,
		})
	}
}

func (f purchaseFake) GetActiveForListing(_ context.Context, userID, listingID int64) (*models.Purchase, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for i := len(f.w.purchases) - 1; i >= 0; i-- {
		p := f.w.purchases[i]
		if p.UserID == userID && p.ListingID == listingID && p.Status == models.PurchaseActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f purchaseFake) Replace(_ context.Context, in repository.Reschedule) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	kept := f.w.entries[:0]
	for _, e := range f.w.entries {
		if e.PurchaseID == in.PurchaseID && e.Status == models.SchedulePending && e.RunAt.After(in.After) {
			continue
		}
		kept = append(kept, e)
	}
	f.w.entries = kept
	f.insert(in.PurchaseID, in.ListingID, in.Entries)
	for _, p := range f.w.purchases {
		if p.ID == in.PurchaseID {
			p.SlotTemplate = in.SlotTemplate
		}
	}
	f.w.syncPromotion(in.ListingID, in.Package, in.Slot)
	return nil
}

func (f purchaseFake) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var n int64
	for _, p := range f.w.purchases {
		if p.Status != models.PurchaseActive || !p.ExpiresAt.Before(now) {
			continue
		}
		if pr, ok := f.w.products[p.ProductID]; ok && pr.Kind == models.ProductTopFixed {
			if l, ok := f.w.listings[p.ListingID]; ok && l.BumpPackage == pr.Code {
				l.BumpPackage = ""
				l.BumpSlot = ""
			}
		}
		p.Status = models.PurchaseExpired
		n++
	}
	return n, nil
}

type scheduleFake struct{ w *world }

func (f scheduleFake) NextPending(_ context.Context, listingID int64, after time.Time) (*models.ScheduleEntry, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, e := range f.w.entriesOf(listingID) {
		if e.Status == models.SchedulePending && e.RunAt.After(after) {
			return &e, nil
		}
	}
	return nil, nil
}

func (f scheduleFake) DueEntries(_ context.Context, listingID int64, now time.Time) ([]models.ScheduleEntry, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.ScheduleEntry
	for _, e := range f.w.entriesOf(listingID) {
		if e.Status == models.SchedulePending && !e.RunAt.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f scheduleFake) ListForPurchase(_ context.Context, purchaseID int64) ([]models.ScheduleEntry, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.ScheduleEntry
	for _, e := range f.w.entries {
		if e.PurchaseID == purchaseID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

type logFake struct{ w *world }

func (f logFake) ListForListing(_ context.Context, listingID int64, limit int) ([]models.BumpLog, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.BumpLog
	for i := len(f.w.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if f.w.logs[i].ListingID == listingID {
			out = append(out, f.w.logs[i])
		}
	}
	return out, nil
}

func (f logFake) Append(_ context.Context, entry models.BumpLog) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.logs = append(f.w.logs, entry)
	return nil
}

type userFake struct{ w *world }

func (f userFake) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	credits, ok := f.w.credits[id]
	if !ok {
		return nil, nil
	}
	return &models.User{ID: id, Credits: credits}, nil
}

func (f userFake) AddCredits(_ context.Context, userID int64, delta int) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	credits, ok := f.w.credits[userID]
	if !ok {
		return repository.ErrNotFound
	}
	f.w.credits[userID] = max(credits+delta, 0)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	attempts map[string]int
	skipped  map[string]int
	listings int64
	bought   int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{attempts: map[string]int{}, skipped: map[string]int{}}
}

func (m *recordingMetrics) BumpAttempt(result string) {
	m.mu.Lock()
	m.attempts[result]++
	m.mu.Unlock()
}

func (m *recordingMetrics) TickSkipped(job string) {
	m.mu.Lock()
	m.skipped[job]++
	m.mu.Unlock()
}

func (m *recordingMetrics) ExpiredListings(n int64) {
	m.mu.Lock()
	m.listings += n
	m.mu.Unlock()
}

func (m *recordingMetrics) ExpiredPurchases(n int64) {
	m.mu.Lock()
	m.bought += n
	m.mu.Unlock()
}
