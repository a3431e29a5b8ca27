package enums

import "fmt"

// OrderStatus maps to the status column on customer_orders.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "CREATED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusReturned   OrderStatus = "RETURNED"
	OrderStatusRejected   OrderStatus = "REJECTED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
	OrderStatusRejected,
	OrderStatusFailed,
}

// IsValid reports whether the value matches a known order status.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusReturned, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
