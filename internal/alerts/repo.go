package alerts

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

type listAlertsParams struct {
	Limit          int
	Cursor         *pagination.Cursor
	Unacknowledged bool
}

// Repository reads and updates operator alert rows.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*models.Alert, error)
	Acknowledge(ctx context.Context, id int64, at time.Time) (bool, error)
	List(ctx context.Context, params listAlertsParams) ([]models.Alert, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a gorm-backed alerts repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// Acknowledge stamps the alert once; an already-acknowledged row is left
// untouched and reported via the bool.
func (r *repository) Acknowledge(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Update("acknowledged_at", at)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "acknowledge alert")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, params listAlertsParams) ([]models.Alert, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Alert{})
	if params.Unacknowledged {
		query = query.Where("acknowledged_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var items []models.Alert
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
