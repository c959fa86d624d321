package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, code, label, kind, quantity_per_window, duration_days, credits_cost, active, created_at, updated_at`

func scanProduct(row rowScanner) (*models.PromotionProduct, error) {
	var p models.PromotionProduct
	if err := row.Scan(&p.ID, &p.Code, &p.Label, &p.Kind, &p.QuantityPerWindow, &p.DurationDays, &p.CreditsCost, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]models.PromotionProduct, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM promotion_products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.PromotionProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.PromotionProduct, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM promotion_products WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*models.PromotionProduct, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM promotion_products WHERE code = ?`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by code: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.PromotionProduct) (*models.PromotionProduct, error) {
	const query = `
INSERT INTO promotion_products (code, label, kind, quantity_per_window, duration_days, credits_cost, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, p.Code, p.Label, p.Kind, p.QuantityPerWindow, p.DurationDays, p.CreditsCost, p.Active)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("product last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ProductRepository) Update(ctx context.Context, p *models.PromotionProduct) (*models.PromotionProduct, error) {
	const query = `
UPDATE promotion_products
SET label = ?, kind = ?, quantity_per_window = ?, duration_days = ?, credits_cost = ?, active = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, p.Label, p.Kind, p.QuantityPerWindow, p.DurationDays, p.CreditsCost, p.Active, p.ID); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return r.GetByID(ctx, p.ID)
}

// Deactivate hides a product from sale. Purchases keep referencing it.
func (r *ProductRepository) Deactivate(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE promotion_products SET active = 0, updated_at = NOW() WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	return nil
}
