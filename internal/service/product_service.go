package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/repository"
)

type ProductStore interface {
	List(ctx context.Context) ([]models.PromotionProduct, error)
	GetByID(ctx context.Context, id int64) (*models.PromotionProduct, error)
	GetByCode(ctx context.Context, code string) (*models.PromotionProduct, error)
	Create(ctx context.Context, p *models.PromotionProduct) (*models.PromotionProduct, error)
	Update(ctx context.Context, p *models.PromotionProduct) (*models.PromotionProduct, error)
	Deactivate(ctx context.Context, id int64) error
}

type ProductService struct {
	repo ProductStore
}

func NewProductService(repo ProductStore) *ProductService {
	return &ProductService{repo: repo}
}

// DefaultProducts is the catalogue seeded on an empty database.
var DefaultProducts = []models.PromotionProduct{
	{Code: "BUMP_NOW", Label: "Risali subito", Kind: models.ProductImmediate, QuantityPerWindow: 1, DurationDays: 1, CreditsCost: 1},
	{Code: "DAY_7", Label: "Giorno 7 giorni", Kind: models.ProductDay, QuantityPerWindow: 1, DurationDays: 7, CreditsCost: 5},
	{Code: "DAY_30", Label: "Giorno 30 giorni", Kind: models.ProductDay, QuantityPerWindow: 1, DurationDays: 30, CreditsCost: 18},
	{Code: "NIGHT_7", Label: "Notte 7 giorni", Kind: models.ProductNight, QuantityPerWindow: 1, DurationDays: 7, CreditsCost: 5},
	{Code: "NIGHT_MULTI_7", Label: "Notte x10 7 giorni", Kind: models.ProductNight, QuantityPerWindow: 10, DurationDays: 7, CreditsCost: 30},
	{Code: "TOP_7", Label: "In vetrina 7 giorni", Kind: models.ProductTopFixed, QuantityPerWindow: 1, DurationDays: 7, CreditsCost: 25},
}

// EnsureDefaults creates the default products that are missing. Existing
// products are never touched so admin edits survive restarts.
func (s *ProductService) EnsureDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, p := range DefaultProducts {
		existing, err := s.repo.GetByCode(ctx, p.Code)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		p.Active = true
		if _, err := s.repo.Create(ctx, &p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return created, fmt.Errorf("seed product %s: %w", p.Code, err)
		}
		created++
	}
	return created, nil
}

func (s *ProductService) List(ctx context.Context) ([]models.PromotionProduct, error) {
	return s.repo.List(ctx)
}

type CreateProductInput struct {
	Code              string
	Label             string
	Kind              models.ProductKind
	QuantityPerWindow int
	DurationDays      int
	CreditsCost       int
	Active            *bool
}

func (s *ProductService) Create(ctx context.Context, in CreateProductInput) (*models.PromotionProduct, error) {
	p := &models.PromotionProduct{
		Code:              strings.ToUpper(strings.TrimSpace(in.Code)),
		Label:             strings.TrimSpace(in.Label),
		Kind:              in.Kind,
		QuantityPerWindow: in.QuantityPerWindow,
		DurationDays:      in.DurationDays,
		CreditsCost:       in.CreditsCost,
		Active:            true,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if p.Code == "" {
		return nil, fmt.Errorf("%w: code required", ErrInvalidInput)
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, p)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("%w: code %s already exists", ErrInvalidInput, p.Code)
	}
	return created, err
}

type UpdateProductInput struct {
	Label             *string
	Kind              *models.ProductKind
	QuantityPerWindow *int
	DurationDays      *int
	CreditsCost       *int
	Active            *bool
}

func (s *ProductService) Update(ctx context.Context, id int64, in UpdateProductInput) (*models.PromotionProduct, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	if in.Label != nil {
		p.Label = strings.TrimSpace(*in.Label)
	}
	if in.Kind != nil {
		p.Kind = *in.Kind
	}
	if in.QuantityPerWindow != nil {
		p.QuantityPerWindow = *in.QuantityPerWindow
	}
	if in.DurationDays != nil {
		p.DurationDays = *in.DurationDays
	}
	if in.CreditsCost != nil {
		p.CreditsCost = *in.CreditsCost
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, p)
}

func (s *ProductService) Deactivate(ctx context.Context, id int64) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProductNotFound
	}
	return s.repo.Deactivate(ctx, id)
}

func validateProduct(p *models.PromotionProduct) error {
	switch {
	case p.Label == "":
		return fmt.Errorf("%w: label required", ErrInvalidInput)
	case !p.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, p.Kind)
	case p.QuantityPerWindow <= 0:
		return fmt.Errorf("%w: quantity_per_window must be positive", ErrInvalidInput)
	case p.DurationDays <= 0:
		return fmt.Errorf("%w: duration_days must be positive", ErrInvalidInput)
	case p.CreditsCost < 0:
		return fmt.Errorf("%w: credits_cost cannot be negative", ErrInvalidInput)
	}
	return nil
}
