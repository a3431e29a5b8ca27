package inventory

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

type listInventoryParams struct {
	Limit   int
	Cursor  *pagination.Cursor
	LowOnly bool
}

// Repository defines persistence for the inventory table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, inv *models.Inventory) error
	FindByID(ctx context.Context, id int64) (*models.Inventory, error)
	FindByProductID(ctx context.Context, productID int64) (*models.Inventory, error)
	// FindByProductIDForUpdate takes a row lock; callers must hold a transaction.
	FindByProductIDForUpdate(ctx context.Context, productID int64) (*models.Inventory, error)
	Save(ctx context.Context, inv *models.Inventory) error
	List(ctx context.Context, params listInventoryParams) ([]models.Inventory, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, inv *models.Inventory) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Inventory, error) {
	var inv models.Inventory
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByProductID(ctx context.Context, productID int64) (*models.Inventory, error) {
	var inv models.Inventory
	if err := r.db.WithContext(ctx).First(&inv, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByProductIDForUpdate(ctx context.Context, productID int64) (*models.Inventory, error) {
	query := r.db.WithContext(ctx)
	// sqlite has no row locks and rejects FOR UPDATE.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var inv models.Inventory
	if err := query.First(&inv, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// Save increments the version column; the zero-row case signals a concurrent
// writer and surfaces as gorm.ErrRecordNotFound for the service to map.
func (r *repository) Save(ctx context.Context, inv *models.Inventory) error {
	res := r.db.WithContext(ctx).
		Model(&models.Inventory{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]any{
			"quantity":           inv.Quantity,
			"reserved_quantity":  inv.ReservedQuantity,
			"reorder_level":      inv.ReorderLevel,
			"clear_low_quantity": inv.ClearLowQuantity,
			"low_quantity":       inv.LowQuantity,
			"version":            inv.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	inv.Version++
	return nil
}

func (r *repository) List(ctx context.Context, params listInventoryParams) ([]models.Inventory, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Inventory{})
	if params.LowOnly {
		query = query.Where("low_quantity = ?", true)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var items []models.Inventory
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
