package enums

import "fmt"

// FailureCode records why an order ended REJECTED or FAILED.
type FailureCode string

const (
	FailureOutOfStock        FailureCode = "OUT_OF_STOCK"
	FailureInventoryNotFound FailureCode = "INVENTORY_NOT_FOUND"
	FailureProductNotFound   FailureCode = "PRODUCT_NOT_FOUND"
	FailureInvalidData       FailureCode = "INVALID_DATA"
	FailureTechnicalError    FailureCode = "TECHNICAL_ERROR"
)

var validFailureCodes = []FailureCode{
	FailureOutOfStock,
	FailureInventoryNotFound,
	FailureProductNotFound,
	FailureInvalidData,
	FailureTechnicalError,
}

// IsValid reports whether the value matches a known failure code.
func (f FailureCode) IsValid() bool {
	for _, candidate := range validFailureCodes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFailureCode converts raw input into FailureCode.
func ParseFailureCode(value string) (FailureCode, error) {
	for _, candidate := range validFailureCodes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid failure code %q", value)
}
