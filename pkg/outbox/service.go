package outbox

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	apperrors "github.com/janisliepins/stockflow-backend/pkg/errors"
)

// Emitter writes events into the outbox table as part of a business
// transaction, so the event becomes visible iff the transaction commits.
type Emitter struct {
	repo *Repository
}

// NewEmitter returns an Emitter backed by the given repository.
func NewEmitter(repo *Repository) *Emitter {
	return &Emitter{repo: repo}
}

// Emit serializes payload and inserts a PENDING event inside tx. The event is
// immediately eligible for dispatch once the transaction commits.
func (e *Emitter) Emit(tx *gorm.DB, eventType enums.OutboxEventType, aggregateID int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal outbox payload")
	}

	event := &models.OutboxEvent{
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     body,
		Status:      enums.OutboxStatusPending,
		AvailableAt: time.Now().UTC(),
	}
	if err := e.repo.Insert(tx, event); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "insert outbox event")
	}
	return nil
}

// Backoff returns how long a failed event waits before its next attempt. The
// exponent is clamped so long-dead events do not overflow into huge delays.
func Backoff(attempts int) time.Duration {
	exp := attempts
	if exp > 10 {
		exp = 10
	}
	delay := time.Duration(1<<uint(exp)) * time.Second
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
