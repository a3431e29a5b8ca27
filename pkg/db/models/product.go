package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/janisliepins/stockflow-backend/pkg/enums"
)

// Product is a catalog entry. Orders snapshot its price at order time, so
// price changes never rewrite history.
type Product struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	SKU         string          `gorm:"column:sku;size:64;not null;uniqueIndex:ux_products_sku"`
	Name        string          `gorm:"column:name;size:200;not null;index:idx_products_name"`
	Description *string         `gorm:"column:description;size:2000"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(19,2);not null"`
	IsDeleted   bool            `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	Version     int64           `gorm:"column:version;not null;default:0"`
}

func (Product) TableName() string { return "products" }

// CustomerOrder owns its items and advances monotonically through the order
// lifecycle. (source, external_order_id) is the natural idempotency key for
// externally ingested orders; both are null for orders created directly.
type CustomerOrder struct {
	ID              int64                      `gorm:"column:id;primaryKey;autoIncrement"`
	Status          enums.OrderStatus          `gorm:"column:status;size:32;not null;index:idx_orders_status"`
	TotalAmount     decimal.Decimal            `gorm:"column:total_amount;type:numeric(19,2);not null"`
	Source          *enums.ExternalOrderSource `gorm:"column:source;size:32;uniqueIndex:ux_orders_source_external_id"`
	ExternalOrderID *string                    `gorm:"column:external_order_id;size:64;uniqueIndex:ux_orders_source_external_id"`
	ShippingAddress *string                    `gorm:"column:shipping_address;size:128"`
	FailureCode     *enums.FailureCode         `gorm:"column:failure_code;size:32"`
	FailureMessage  *string                    `gorm:"column:failure_message;size:500"`
	RetryCount      int                        `gorm:"column:retry_count;not null;default:0"`
	FailedAt        *time.Time                 `gorm:"column:failed_at"`
	Version         int64                      `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime;index:idx_orders_created_at"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (CustomerOrder) TableName() string { return "customer_orders" }

// OrderItem is owned by exactly one order. PriceAtOrderTime is immutable
// once written.
type OrderItem struct {
	ID               int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID          int64           `gorm:"column:order_id;not null;index:idx_order_items_order_id"`
	ProductID        int64           `gorm:"column:product_id;not null"`
	Quantity         int             `gorm:"column:quantity;not null"`
	PriceAtOrderTime decimal.Decimal `gorm:"column:price_at_order_time;type:numeric(19,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
