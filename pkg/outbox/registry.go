package outbox

import (
	"context"
	"fmt"

	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

// Handler processes one claimed outbox event. Returning a business error (see
// errors.IsBusiness) means the event is consumed and must not be retried; any
// other error schedules a retry.
type Handler func(ctx context.Context, event *models.OutboxEvent) error

// Registry maps event types to handlers. Registration happens once at worker
// startup; lookups afterwards are read-only, so no locking is needed.
type Registry struct {
	handlers map[enums.OutboxEventType]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[enums.OutboxEventType]Handler)}
}

// Register binds handler to eventType. Unknown types, nil handlers and
// duplicate registrations are programming errors and fail loudly at startup.
func (r *Registry) Register(eventType enums.OutboxEventType, handler Handler) error {
	if !eventType.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", eventType)
	}
	if handler == nil {
		return fmt.Errorf("outbox: nil handler for event type %q", eventType)
	}
	if _, ok := r.handlers[eventType]; ok {
		return fmt.Errorf("outbox: duplicate handler for event type %q", eventType)
	}
	r.handlers[eventType] = handler
	return nil
}

// Lookup returns the handler for eventType, or false when none is registered.
func (r *Registry) Lookup(eventType enums.OutboxEventType) (Handler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}
