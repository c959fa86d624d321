package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

const listingColumns = `
id, COALESCE(source_id, ''), COALESCE(source_url, ''), title, description, category, city,
COALESCE(zone, ''), COALESCE(phone, ''), COALESCE(whatsapp, ''), COALESCE(age, 0), photos, COALESCE(price, 0),
user_id, is_active, expires_at, published_at, COALESCE(bump_package, ''), COALESCE(bump_time_slot, ''),
bump_count, max_bumps, next_bump_at, last_bump_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var photos []byte
	var userID sql.NullInt64
	var nextBump, lastBump sql.NullTime
	if err := row.Scan(&l.ID, &l.SourceID, &l.SourceURL, &l.Title, &l.Description, &l.Category, &l.City,
		&l.Zone, &l.Phone, &l.WhatsApp, &l.Age, &photos, &l.Price,
		&userID, &l.IsActive, &l.ExpiresAt, &l.PublishedAt, &l.BumpPackage, &l.BumpSlot,
		&l.BumpCount, &l.MaxBumps, &nextBump, &lastBump, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &l.Photos); err != nil {
			return nil, fmt.Errorf("decode photos of listing %d: %w", l.ID, err)
		}
	}
	if userID.Valid {
		l.UserID = &userID.Int64
	}
	if nextBump.Valid {
		l.NextBumpAt = &nextBump.Time
	}
	if lastBump.Valid {
		l.LastBumpAt = &lastBump.Time
	}
	return &l, nil
}

func (r *ListingRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	l, err := r.queryOne(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (r *ListingRepository) FindBySourceID(ctx context.Context, sourceID string) (*models.Listing, error) {
	l, err := r.queryOne(ctx, `SELECT `+listingColumns+` FROM listings WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("find listing by source id: %w", err)
	}
	return l, nil
}

// FindByContact looks up a listing of the same category and city sharing the
// phone number or the whatsapp link. Empty contacts never match.
func (r *ListingRepository) FindByContact(ctx context.Context, category models.Category, city, phone, whatsapp string) (*models.Listing, error) {
	if phone == "" && whatsapp == "" {
		return nil, nil
	}
	const query = `SELECT ` + listingColumns + ` FROM listings
WHERE category = ? AND city = ? AND ((phone IS NOT NULL AND phone = ?) OR (whatsapp IS NOT NULL AND whatsapp = ?))
ORDER BY id ASC
LIMIT 1`
	l, err := r.queryOne(ctx, query, category, city, phone, whatsapp)
	if err != nil {
		return nil, fmt.Errorf("find listing by contact: %w", err)
	}
	return l, nil
}

func (r *ListingRepository) Create(ctx context.Context, l *models.Listing) error {
	photos, err := json.Marshal(nonNilPhotos(l.Photos))
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}
	const query = `
INSERT INTO listings (source_id, source_url, title, description, category, city, zone, phone, whatsapp, age, photos, price,
    user_id, is_active, expires_at, published_at, max_bumps)
VALUES (NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, 0), ?, NULLIF(?, 0),
    ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, l.SourceID, l.SourceURL, l.Title, l.Description, l.Category, l.City,
		l.Zone, l.Phone, l.WhatsApp, l.Age, photos, l.Price,
		l.UserID, l.IsActive, l.ExpiresAt, l.PublishedAt, l.MaxBumps)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	l.ID = id
	return nil
}

// UpdateContent refreshes scraped content and provenance. Promotion and
// lifecycle columns are left alone.
func (r *ListingRepository) UpdateContent(ctx context.Context, l *models.Listing) error {
	photos, err := json.Marshal(nonNilPhotos(l.Photos))
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}
	const query = `
UPDATE listings
SET source_id = NULLIF(?, ''), source_url = NULLIF(?, ''), title = ?, description = ?, zone = NULLIF(?, ''),
    phone = NULLIF(?, ''), whatsapp = NULLIF(?, ''), age = NULLIF(?, 0), photos = ?, price = NULLIF(?, 0), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, l.SourceID, l.SourceURL, l.Title, l.Description, l.Zone,
		l.Phone, l.WhatsApp, l.Age, photos, l.Price, l.ID); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update listing content: %w", err)
	}
	return nil
}

// FindDue returns active listings whose next bump is due, oldest first.
func (r *ListingRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings
WHERE is_active = 1 AND next_bump_at IS NOT NULL AND next_bump_at <= ? AND bump_count < max_bumps
ORDER BY next_bump_at ASC, id ASC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// BumpUpdate describes one executed bump.
type BumpUpdate struct {
	ListingID     int64
	ExpectedCount int
	// Missed is the number of older due entries given up on; each lowers the ceiling.
	Missed     int
	Now        time.Time
	NextBumpAt *time.Time
}

// ApplyBump resurfaces a listing and consumes its due schedule entries in one
// transaction. The update only applies while bump_count still equals
// ExpectedCount, so two concurrent executors cannot both count the same bump.
// The latest due entry is marked DONE and older due entries FAILED.
func (r *ListingRepository) ApplyBump(ctx context.Context, u BumpUpdate) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// MySQL evaluates single-table SET assignments left to right, so is_active
	// and next_bump_at see the incremented count and the lowered ceiling.
	const update = `
UPDATE listings
SET max_bumps = max_bumps - ?, bump_count = bump_count + 1,
    is_active = (bump_count < max_bumps), next_bump_at = IF(bump_count < max_bumps, ?, NULL),
    published_at = ?, last_bump_at = ?, updated_at = NOW()
WHERE id = ? AND bump_count = ? AND bump_count < max_bumps`
	var next any
	if u.NextBumpAt != nil {
		next = *u.NextBumpAt
	}
	res, err := tx.ExecContext(ctx, update, u.Missed, next, u.Now, u.Now, u.ListingID, u.ExpectedCount)
	if err != nil {
		return fmt.Errorf("apply bump: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}

	rows, err := tx.QueryContext(ctx, `
SELECT id FROM bump_schedules
WHERE listing_id = ? AND status = 'PENDING' AND run_at <= ?
ORDER BY run_at DESC
FOR UPDATE`, u.ListingID, u.Now)
	if err != nil {
		return fmt.Errorf("select due schedules: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan schedule id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate due schedules: %w", err)
	}

	for i, id := range ids {
		status := models.ScheduleFailed
		if i == 0 {
			status = models.ScheduleDone
		}
		if _, err := tx.ExecContext(ctx, `UPDATE bump_schedules SET status = ? WHERE id = ?`, status, id); err != nil {
			return fmt.Errorf("mark schedule %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bump tx: %w", err)
	}
	return nil
}

// DeactivateExpired hides listings past their expiry or out of bumps. A
// listing held by an active top-fixed purchase is not counted as out of bumps.
func (r *ListingRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `
UPDATE listings
SET is_active = 0, next_bump_at = NULL, updated_at = NOW()
WHERE is_active = 1 AND (
    expires_at < ?
    OR (max_bumps > 0 AND bump_count >= max_bumps AND NOT EXISTS (
        SELECT 1 FROM purchases p
        JOIN promotion_products pr ON pr.id = p.product_id
        WHERE p.listing_id = listings.id AND p.status = 'ACTIVE' AND pr.kind = 'TOP_FIXED' AND p.expires_at >= ?)))`
	res, err := r.db.ExecContext(ctx, query, now, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired listings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate rows affected: %w", err)
	}
	return affected, nil
}

func nonNilPhotos(photos []string) []string {
	if photos == nil {
		return []string{}
	}
	return photos
}
