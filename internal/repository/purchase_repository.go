package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Promotion is the listing-side state written together with a purchase.
type Promotion struct {
	Package string
	Slot    string
	// Pinned marks a top-fixed placement: no schedule, published now and kept
	// visible at least until PinnedUntil.
	Pinned      bool
	PinnedUntil time.Time
	Now         time.Time
}

type PurchaseCreate struct {
	UserID       int64
	ListingID    int64
	Product      models.PromotionProduct
	StartedAt    time.Time
	ExpiresAt    time.Time
	SlotTemplate string
	Entries      []models.ScheduleEntry
	Promotion    Promotion
}

// Create debits the wallet, records the purchase, materialises its schedule
// and updates the listing promotion state in a single transaction. Nothing is
// written when the wallet cannot cover the product.
func (r *PurchaseRepository) Create(ctx context.Context, in PurchaseCreate) (int64, int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var credits int
	row := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ? FOR UPDATE`, in.UserID)
	if err := row.Scan(&credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("lock wallet: %w", err)
	}
	if credits < in.Product.CreditsCost {
		return 0, credits, ErrInsufficientCredits
	}

	res, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits - ?, updated_at = NOW() WHERE id = ? AND credits >= ?`,
		in.Product.CreditsCost, in.UserID, in.Product.CreditsCost)
	if err != nil {
		return 0, 0, fmt.Errorf("debit wallet: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("debit rows affected: %w", err)
	} else if affected == 0 {
		return 0, credits, ErrInsufficientCredits
	}

	res, err = tx.ExecContext(ctx, `
INSERT INTO purchases (user_id, listing_id, product_id, status, started_at, expires_at, slot_template)
VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''))`,
		in.UserID, in.ListingID, in.Product.ID, models.PurchaseActive, in.StartedAt, in.ExpiresAt, in.SlotTemplate)
	if err != nil {
		return 0, 0, fmt.Errorf("insert purchase: %w", err)
	}
	purchaseID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("purchase last insert id: %w", err)
	}

	if err := insertSchedules(ctx, tx, purchaseID, in.ListingID, in.Entries); err != nil {
		return 0, 0, err
	}
	if err := applyPromotion(ctx, tx, in.ListingID, in.Promotion); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit purchase tx: %w", err)
	}
	return purchaseID, credits - in.Product.CreditsCost, nil
}

// applyPromotion writes the listing side of a purchase. A pin is refused while
// scheduled bumps are still pending, and it resets the bump ceiling so the
// exhausted counter of an earlier package does not hide the pinned listing.
func applyPromotion(ctx context.Context, tx *sql.Tx, listingID int64, p Promotion) error {
	if p.Pinned {
		var pending int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bump_schedules WHERE listing_id = ? AND status = 'PENDING'`, listingID)
		if err := row.Scan(&pending); err != nil {
			return fmt.Errorf("count pending schedules: %w", err)
		}
		if pending > 0 {
			return ErrScheduleActive
		}
		const pin = `
UPDATE listings
SET bump_package = ?, bump_time_slot = ?, next_bump_at = NULL, published_at = ?, is_active = 1,
    max_bumps = bump_count, expires_at = GREATEST(expires_at, ?), updated_at = NOW()
WHERE id = ?`
		if _, err := tx.ExecContext(ctx, pin, p.Package, p.Slot, p.Now, p.PinnedUntil, listingID); err != nil {
			return fmt.Errorf("pin listing: %w", err)
		}
		return nil
	}
	return syncPromotion(ctx, tx, listingID, p.Package, p.Slot)
}

// syncPromotion recomputes the bump ceiling and next due instant of a listing
// from its pending schedule entries.
func syncPromotion(ctx context.Context, tx *sql.Tx, listingID int64, pkg, slot string) error {
	const query = `
UPDATE listings
SET bump_package = ?, bump_time_slot = ?,
    max_bumps = bump_count + (SELECT COUNT(*) FROM bump_schedules WHERE listing_id = ? AND status = 'PENDING'),
    next_bump_at = (SELECT MIN(run_at) FROM bump_schedules WHERE listing_id = ? AND status = 'PENDING'),
    is_active = 1, updated_at = NOW()
WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, pkg, slot, listingID, listingID, listingID); err != nil {
		return fmt.Errorf("sync listing promotion: %w", err)
	}
	return nil
}

const purchaseColumns = `id, user_id, listing_id, product_id, status, started_at, expires_at, COALESCE(slot_template, ''), created_at`

func scanPurchase(row rowScanner) (*models.Purchase, error) {
	var p models.Purchase
	if err := row.Scan(&p.ID, &p.UserID, &p.ListingID, &p.ProductID, &p.Status, &p.StartedAt, &p.ExpiresAt, &p.SlotTemplate, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetActiveForListing returns the most recent ACTIVE purchase of a listing by a user.
func (r *PurchaseRepository) GetActiveForListing(ctx context.Context, userID, listingID int64) (*models.Purchase, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM purchases
WHERE user_id = ? AND listing_id = ? AND status = 'ACTIVE'
ORDER BY started_at DESC, id DESC
LIMIT 1`
	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, userID, listingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active purchase: %w", err)
	}
	return p, nil
}

type Reschedule struct {
	PurchaseID   int64
	ListingID    int64
	After        time.Time
	SlotTemplate string
	Entries      []models.ScheduleEntry
	Package      string
	Slot         string
}

// Replace swaps the still-pending future entries of a purchase for a freshly
// generated set and resyncs the listing.
func (r *PurchaseRepository) Replace(ctx context.Context, in Reschedule) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bump_schedules WHERE purchase_id = ? AND status = 'PENDING' AND run_at > ?`,
		in.PurchaseID, in.After); err != nil {
		return fmt.Errorf("delete pending schedules: %w", err)
	}
	if err := insertSchedules(ctx, tx, in.PurchaseID, in.ListingID, in.Entries); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE purchases SET slot_template = NULLIF(?, '') WHERE id = ?`, in.SlotTemplate, in.PurchaseID); err != nil {
		return fmt.Errorf("update slot template: %w", err)
	}
	if err := syncPromotion(ctx, tx, in.ListingID, in.Package, in.Slot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule tx: %w", err)
	}
	return nil
}

// ExpireDue marks ACTIVE purchases past their expiry as EXPIRED and releases
// the top-fixed pins they held.
func (r *PurchaseRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const unpin = `
UPDATE listings l
JOIN purchases p ON p.listing_id = l.id
JOIN promotion_products pr ON pr.id = p.product_id
SET l.bump_package = NULL, l.bump_time_slot = NULL, l.updated_at = NOW()
WHERE p.status = 'ACTIVE' AND p.expires_at < ? AND pr.kind = 'TOP_FIXED' AND l.bump_package = pr.code`
	if _, err := tx.ExecContext(ctx, unpin, now); err != nil {
		return 0, fmt.Errorf("release top pins: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE purchases SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("expire purchases: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expiry tx: %w", err)
	}
	return affected, nil
}
