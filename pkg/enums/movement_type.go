package enums

import "fmt"

// MovementType classifies a stock movement record.
type MovementType string

const (
	MovementOrderReserved    MovementType = "ORDER_RESERVED"
	MovementOrderFulfilled   MovementType = "ORDER_FULFILLED"
	MovementOrderReleased    MovementType = "ORDER_RELEASED"
	MovementOrderReturned    MovementType = "ORDER_RETURNED"
	MovementManualAdjustment MovementType = "MANUAL_ADJUSTMENT"
)

var validMovementTypes = []MovementType{
	MovementOrderReserved,
	MovementOrderFulfilled,
	MovementOrderReleased,
	MovementOrderReturned,
	MovementManualAdjustment,
}

// IsValid reports whether the value matches a known movement type.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// RequiresOrderID reports whether a movement of this type must reference an order.
func (m MovementType) RequiresOrderID() bool {
	return m != MovementManualAdjustment
}

// ParseMovementType converts raw input into MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
