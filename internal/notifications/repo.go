package notifications

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
)

// Repository persists notification tasks and their alert records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTask(ctx context.Context, task *models.NotificationTask) error
	CreateAlert(ctx context.Context, alert *models.Alert) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationTask, error)
	Save(ctx context.Context, task *models.NotificationTask) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a gorm-backed notifications repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) CreateTask(ctx context.Context, task *models.NotificationTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification task")
	}
	return nil
}

func (r *repository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create alert")
	}
	return nil
}

// FindDue returns pending tasks whose next attempt is due, oldest first.
func (r *repository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationTask, error) {
	var tasks []models.NotificationTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", enums.NotificationTaskPending, now).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find due notification tasks")
	}
	return tasks, nil
}

func (r *repository) Save(ctx context.Context, task *models.NotificationTask) error {
	err := r.db.WithContext(ctx).
		Model(&models.NotificationTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":          task.Status,
			"attempts":        task.Attempts,
			"next_attempt_at": task.NextAttemptAt,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save notification task")
	}
	return nil
}
