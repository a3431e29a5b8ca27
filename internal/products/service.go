package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

// CreateInput carries the fields required to register a product.
type CreateInput struct {
	SKU         string
	Name        string
	Description *string
	Price       decimal.Decimal
}

// UpdateInput mutates the editable product fields.
type UpdateInput struct {
	ID          int64
	Name        string
	Description *string
	Price       decimal.Decimal
}

// ListParams are the supported catalog list filters.
type ListParams struct {
	Limit  int
	Cursor string
	Query  string
}

// ListResult wraps one page of catalog rows.
type ListResult struct {
	Items      []models.Product `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Service manages the product catalog. Deletes are soft so historical order
// items keep a valid product reference.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	Update(ctx context.Context, input UpdateInput) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	// ResolveActiveBySKUs returns active products keyed by SKU. Missing or
	// deleted SKUs are simply absent from the map.
	ResolveActiveBySKUs(ctx context.Context, skus []string) (map[string]models.Product, error)
	ResolveActiveByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	product := &models.Product{
		SKU:         sku,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "ux_products_sku") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "sku already exists").
				WithDetails(map[string]any{"sku": sku})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	product, err := s.loadActive(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	product.Name = strings.TrimSpace(input.Name)
	product.Description = input.Description
	product.Price = input.Price
	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product modified concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	product, err := s.loadActive(ctx, id)
	if err != nil {
		return err
	}

	product.IsDeleted = true
	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeConflict, "product modified concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Product, error) {
	return s.loadActive(ctx, id)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listProductsParams{Limit: params.Limit, Query: params.Query}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	items, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	result := &ListResult{Items: items}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) ResolveActiveBySKUs(ctx context.Context, skus []string) (map[string]models.Product, error) {
	unique := make([]string, 0, len(skus))
	seen := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		sku = strings.TrimSpace(sku)
		if sku == "" {
			continue
		}
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		unique = append(unique, sku)
	}

	items, err := s.repo.FindActiveBySKUs(ctx, unique)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve products by sku")
	}
	resolved := make(map[string]models.Product, len(items))
	for _, p := range items {
		resolved[p.SKU] = p
	}
	return resolved, nil
}

func (s *service) ResolveActiveByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	items, err := s.repo.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve products by id")
	}
	resolved := make(map[int64]models.Product, len(items))
	for _, p := range items {
		resolved[p.ID] = p
	}
	return resolved, nil
}

func (s *service) loadActive(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.IsDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
	}
	return product, nil
}
