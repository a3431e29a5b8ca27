package models

import (
	"time"

	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

// NotificationTask queues one low-stock alert delivery with retry bookkeeping.
type NotificationTask struct {
	ID            int64                        `gorm:"column:id;primaryKey;autoIncrement"`
	TaskName      string                       `gorm:"column:task_name;size:64;not null;default:LOW_STOCK_ALERT"`
	InventoryID   int64                        `gorm:"column:inventory_id;not null;index:idx_notification_tasks_inventory_id"`
	Status        enums.NotificationTaskStatus `gorm:"column:status;size:16;not null;index:idx_notification_tasks_status"`
	Attempts      int                          `gorm:"column:attempts;not null;default:0"`
	NextAttemptAt time.Time                    `gorm:"column:next_attempt_at;not null"`
	CreatedAt     time.Time                    `gorm:"column:created_at;autoCreateTime"`
}

func (NotificationTask) TableName() string { return "notification_tasks" }

// Alert is an operator-facing record created when inventory first dips below
// its reorder level. Acknowledgement is manual.
type Alert struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	AlertType      enums.AlertType `gorm:"column:alert_type;size:32;not null"`
	InventoryID    int64           `gorm:"column:inventory_id;not null;index:idx_alerts_inventory_id"`
	Message        string          `gorm:"column:message;size:500;not null"`
	AcknowledgedAt *time.Time      `gorm:"column:acknowledged_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_alerts_created_at"`
}

func (Alert) TableName() string { return "alerts" }
