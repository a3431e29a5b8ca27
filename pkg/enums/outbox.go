package enums

import "fmt"

// OutboxEventType maps to the event_type column on outbox_events.
type OutboxEventType string

const (
	EventExternalOrderIngested     OutboxEventType = "EXTERNAL_ORDER_INGESTED"
	EventExternalOrderRejected     OutboxEventType = "EXTERNAL_ORDER_REJECTED"
	EventExternalOrderCancelResult OutboxEventType = "EXTERNAL_ORDER_CANCEL_RESULT"
)

var validOutboxEventTypes = []OutboxEventType{
	EventExternalOrderIngested,
	EventExternalOrderRejected,
	EventExternalOrderCancelResult,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxEventStatus tracks an event through the dispatch state machine.
type OutboxEventStatus string

const (
	OutboxStatusPending    OutboxEventStatus = "PENDING"
	OutboxStatusProcessing OutboxEventStatus = "PROCESSING"
	OutboxStatusFailed     OutboxEventStatus = "FAILED"
	OutboxStatusProcessed  OutboxEventStatus = "PROCESSED"
	OutboxStatusDead       OutboxEventStatus = "DEAD"
)

var validOutboxEventStatuses = []OutboxEventStatus{
	OutboxStatusPending,
	OutboxStatusProcessing,
	OutboxStatusFailed,
	OutboxStatusProcessed,
	OutboxStatusDead,
}

// IsValid reports whether the value matches a known outbox status.
func (s OutboxEventStatus) IsValid() bool {
	for _, candidate := range validOutboxEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
