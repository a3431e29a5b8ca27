package enums

import "fmt"

// ExternalOrderSource identifies the upstream system an order was ingested from.
type ExternalOrderSource string

const (
	SourceShopify     ExternalOrderSource = "SHOPIFY"
	SourceAmazon      ExternalOrderSource = "AMAZON"
	SourceMarketplace ExternalOrderSource = "MARKETPLACE"
)

var validExternalOrderSources = []ExternalOrderSource{
	SourceShopify,
	SourceAmazon,
	SourceMarketplace,
}

// IsValid reports whether the value matches a known source.
func (s ExternalOrderSource) IsValid() bool {
	for _, candidate := range validExternalOrderSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseExternalOrderSource converts raw input into ExternalOrderSource.
func ParseExternalOrderSource(value string) (ExternalOrderSource, error) {
	for _, candidate := range validExternalOrderSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid external order source %q", value)
}

// ExternalOrderCancelResult is the outcome reported back to the source system.
type ExternalOrderCancelResult string

const (
	CancelResultCancelled     ExternalOrderCancelResult = "CANCELLED"
	CancelResultNotCancelable ExternalOrderCancelResult = "NOT_CANCELABLE"
)

// IsValid reports whether the value matches a known cancel result.
func (r ExternalOrderCancelResult) IsValid() bool {
	return r == CancelResultCancelled || r == CancelResultNotCancelable
}

// ParseExternalOrderCancelResult converts raw input into ExternalOrderCancelResult.
func ParseExternalOrderCancelResult(value string) (ExternalOrderCancelResult, error) {
	switch ExternalOrderCancelResult(value) {
	case CancelResultCancelled:
		return CancelResultCancelled, nil
	case CancelResultNotCancelable:
		return CancelResultNotCancelable, nil
	}
	return "", fmt.Errorf("invalid cancel result %q", value)
}
