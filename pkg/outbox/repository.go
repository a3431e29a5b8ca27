package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

// Repository manages persistence for outbox events. Producers insert inside
// their own transaction; the dispatcher is the only mutator afterwards.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns an outbox repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists a new event inside the caller's transaction.
func (r *Repository) Insert(tx *gorm.DB, event *models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// FindCandidateIDs selects events eligible for dispatch: retryable statuses
// that are due, plus PROCESSING rows whose claim has gone stale (crashed
// worker). Ordered by id so one batch processes in insertion order.
func (r *Repository) FindCandidateIDs(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]int64, error) {
	retryable := []enums.OutboxEventStatus{enums.OutboxStatusPending, enums.OutboxStatusFailed}

	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where(
			r.db.Where("status IN ? AND available_at <= ? AND attempts < ?", retryable, now, maxAttempts).
				Or("status = ? AND locked_at < ? AND attempts < ?", enums.OutboxStatusProcessing, staleBefore, maxAttempts),
		).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Claim attempts the atomic conditional transition to PROCESSING. The
// eligibility predicate is re-checked inside the UPDATE, so of two workers
// racing on the same id exactly one sees RowsAffected == 1.
func (r *Repository) Claim(ctx context.Context, id int64, now, staleBefore time.Time, maxAttempts int, workerID string) (bool, error) {
	retryable := []enums.OutboxEventStatus{enums.OutboxStatusPending, enums.OutboxStatusFailed}

	res := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Where(
			r.db.Where("status IN ? AND available_at <= ? AND attempts < ?", retryable, now, maxAttempts).
				Or("status = ? AND locked_at < ? AND attempts < ?", enums.OutboxStatusProcessing, staleBefore, maxAttempts),
		).
		Updates(map[string]any{
			"status":    enums.OutboxStatusProcessing,
			"locked_at": now,
			"locked_by": workerID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByID loads a single event.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.OutboxEvent, error) {
	var event models.OutboxEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Save persists dispatcher bookkeeping for a claimed event. Claim metadata is
// always cleared here: status, not the lock, is the durability mechanism.
func (r *Repository) Save(ctx context.Context, event *models.OutboxEvent) error {
	event.LockedAt = nil
	event.LockedBy = nil
	return r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"status":       event.Status,
			"attempts":     event.Attempts,
			"available_at": event.AvailableAt,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   event.LastError,
			"processed_at": event.ProcessedAt,
		}).Error
}

// CountByStatus reports how many events sit in the given status, used by
// monitoring endpoints.
func (r *Repository) CountByStatus(ctx context.Context, status enums.OutboxEventStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
