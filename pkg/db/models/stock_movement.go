package models

import (
	"time"

	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

// StockMovement is an append-only audit record of one inventory mutation.
// Never updated or deleted; business logic never reads it back.
type StockMovement struct {
	ID           int64              `gorm:"column:id;primaryKey;autoIncrement"`
	InventoryID  int64              `gorm:"column:inventory_id;not null;index:idx_stock_movements_inventory_id"`
	Delta        int                `gorm:"column:delta;not null"`
	MovementType enums.MovementType `gorm:"column:movement_type;size:32;not null"`
	OrderID      *int64             `gorm:"column:order_id;index:idx_stock_movements_order_id"`
	Reason       *string            `gorm:"column:reason;size:500"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (StockMovement) TableName() string { return "stock_movements" }
