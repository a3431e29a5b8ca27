package models

import (
	"encoding/json"
	"time"

	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

// OutboxEvent is a durable intent-to-act written in the same transaction as
// the state change it announces. The dispatcher is the only mutator after
// insert; rows are retained for audit rather than deleted.
type OutboxEvent struct {
	ID          int64                   `gorm:"column:id;primaryKey;autoIncrement"`
	EventType   enums.OutboxEventType   `gorm:"column:event_type;size:64;not null"`
	AggregateID int64                   `gorm:"column:aggregate_id;not null;index:idx_outbox_events_aggregate_id"`
	Payload     json.RawMessage         `gorm:"column:payload;type:jsonb;not null"`
	Status      enums.OutboxEventStatus `gorm:"column:status;size:16;not null;index:idx_outbox_events_status"`
	Attempts    int                     `gorm:"column:attempts;not null;default:0"`
	AvailableAt time.Time               `gorm:"column:available_at;not null"`
	LockedAt    *time.Time              `gorm:"column:locked_at"`
	LockedBy    *string                 `gorm:"column:locked_by;size:100"`
	LastError   *string                 `gorm:"column:last_error;size:1000"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt *time.Time              `gorm:"column:processed_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
