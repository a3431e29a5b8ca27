package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

type listOrdersParams struct {
	Limit  int
	Cursor *pagination.Cursor
	Status *enums.OrderStatus
	Source *enums.ExternalOrderSource
}

// Repository defines persistence for customer orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.CustomerOrder) error
	FindByID(ctx context.Context, id int64) (*models.CustomerOrder, error)
	FindByNaturalKey(ctx context.Context, source enums.ExternalOrderSource, externalOrderID string) (*models.CustomerOrder, error)
	// Save persists order fields guarded by the version column;
	// gorm.ErrRecordNotFound signals a concurrent writer.
	Save(ctx context.Context, order *models.CustomerOrder) error
	AddItem(ctx context.Context, item *models.OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID int64) (bool, error)
	List(ctx context.Context, params listOrdersParams) ([]models.CustomerOrder, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.CustomerOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.CustomerOrder, error) {
	var order models.CustomerOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNaturalKey(ctx context.Context, source enums.ExternalOrderSource, externalOrderID string) (*models.CustomerOrder, error) {
	var order models.CustomerOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("source = ? AND external_order_id = ?", source, externalOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Save(ctx context.Context, order *models.CustomerOrder) error {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"status":           order.Status,
			"total_amount":     order.TotalAmount,
			"shipping_address": order.ShippingAddress,
			"failure_code":     order.FailureCode,
			"failure_message":  order.FailureMessage,
			"retry_count":      order.RetryCount,
			"failed_at":        order.FailedAt,
			"version":          order.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	order.Version++
	return nil
}

func (r *repository) AddItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, orderID, itemID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", itemID, orderID).
		Delete(&models.OrderItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, params listOrdersParams) ([]models.CustomerOrder, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.CustomerOrder{}).Preload("Items")
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Source != nil {
		query = query.Where("source = ?", *params.Source)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var items []models.CustomerOrder
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
