package products

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

type listProductsParams struct {
	Limit  int
	Cursor *pagination.Cursor
	Query  string
}

// Repository defines persistence for the products table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id int64) (*models.Product, error)
	FindActiveBySKUs(ctx context.Context, skus []string) ([]models.Product, error)
	FindActiveByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	List(ctx context.Context, params listProductsParams) ([]models.Product, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a products repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindActiveBySKUs(ctx context.Context, skus []string) ([]models.Product, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var items []models.Product
	err := r.db.WithContext(ctx).
		Where("sku IN ? AND is_deleted = ?", skus, false).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindActiveByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ? AND is_deleted = ?", ids, false).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Update persists the row guarded by the version column.
func (r *repository) Update(ctx context.Context, product *models.Product) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(map[string]any{
			"name":        product.Name,
			"description": product.Description,
			"price":       product.Price,
			"is_deleted":  product.IsDeleted,
			"version":     product.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	product.Version++
	return nil
}

func (r *repository) List(ctx context.Context, params listProductsParams) ([]models.Product, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Product{}).Where("is_deleted = ?", false)
	if q := strings.TrimSpace(params.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", pattern, pattern)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var items []models.Product
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(items) > normalized {
		items = items[:normalized]
		last := items[len(items)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return items, next, nil
}
