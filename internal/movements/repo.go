package movements

import (
	"context"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
)

// Repository defines persistence for the stock_movements table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.StockMovement) error
	FindByInventory(ctx context.Context, inventoryID int64, limit int) ([]models.StockMovement, error)
	FindByOrder(ctx context.Context, orderID int64) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a movements repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) FindByInventory(ctx context.Context, inventoryID int64, limit int) ([]models.StockMovement, error) {
	var items []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("inventory_id = ?", inventoryID).
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID int64) ([]models.StockMovement, error) {
	var items []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
