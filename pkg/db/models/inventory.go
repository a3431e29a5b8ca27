package models

import "time"

// Inventory tracks on-hand and reserved counts per product. Mutated only
// through the inventory service; reserved <= quantity at all times.
type Inventory struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID        int64     `gorm:"column:product_id;not null;uniqueIndex:ux_inventory_product_id"`
	Quantity         int       `gorm:"column:quantity;not null;default:0"`
	ReservedQuantity int       `gorm:"column:reserved_quantity;not null;default:0"`
	ReorderLevel     int       `gorm:"column:reorder_level;not null;default:0"`
	ClearLowQuantity int       `gorm:"column:clear_low_quantity;not null;default:0"`
	LowQuantity      bool      `gorm:"column:low_quantity;not null;default:false"`
	Version          int64     `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Inventory) TableName() string { return "inventory" }

// Available is the quantity not held by reservations.
func (i Inventory) Available() int {
	return i.Quantity - i.ReservedQuantity
}
