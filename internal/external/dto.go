package external

import (
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
)

// IngestItem is one requested line from the source system, keyed by SKU.
type IngestItem struct {
	SKU      string
	Quantity int
}

// IngestInput is an order handed over by an external channel.
type IngestInput struct {
	Source          enums.ExternalOrderSource
	ExternalOrderID string
	ShippingAddress *string
	Items           []IngestItem
}

// IngestResult reports the accepted order. Duplicate is set when the natural
// key already existed and the stored order was returned instead.
type IngestResult struct {
	OrderID   int64             `json:"order_id"`
	Status    enums.OrderStatus `json:"status"`
	Duplicate bool              `json:"duplicate"`
}

// CancelInput identifies the external order to cancel.
type CancelInput struct {
	Source          enums.ExternalOrderSource
	ExternalOrderID string
}

// CancelOutcome reports how a cancellation request resolved.
type CancelOutcome struct {
	OrderID int64                           `json:"order_id"`
	Result  enums.ExternalOrderCancelResult `json:"result"`
}

// StatusResult is the polling view of an ingested order.
type StatusResult struct {
	OrderID        int64              `json:"order_id"`
	Status         enums.OrderStatus  `json:"status"`
	FailureCode    *enums.FailureCode `json:"failure_code,omitempty"`
	FailureMessage *string            `json:"failure_message,omitempty"`
}

// ingestedPayload rides on EXTERNAL_ORDER_INGESTED events.
type ingestedPayload struct {
	OrderID         int64                     `json:"orderId"`
	Source          enums.ExternalOrderSource `json:"source"`
	ExternalOrderID string                    `json:"externalOrderId"`
}

// rejectedPayload rides on EXTERNAL_ORDER_REJECTED events.
type rejectedPayload struct {
	OrderID         int64                     `json:"orderId"`
	Source          enums.ExternalOrderSource `json:"source"`
	ExternalOrderID string                    `json:"externalOrderId"`
	FailureCode     enums.FailureCode         `json:"failureCode"`
	Message         string                    `json:"message,omitempty"`
}

// cancelResultPayload rides on EXTERNAL_ORDER_CANCEL_RESULT events.
type cancelResultPayload struct {
	OrderID         int64                           `json:"orderId"`
	Source          enums.ExternalOrderSource       `json:"source"`
	ExternalOrderID string                          `json:"externalOrderId"`
	Result          enums.ExternalOrderCancelResult `json:"result"`
}

// failureCodeFor maps a domain error onto the failure taxonomy stored on the
// order and reported to the source channel.
func failureCodeFor(err error) enums.FailureCode {
	typed := pkgerrors.As(err)
	if typed == nil {
		return enums.FailureTechnicalError
	}
	switch typed.Code() {
	case pkgerrors.CodeOutOfStock:
		return enums.FailureOutOfStock
	case pkgerrors.CodeInventoryNotFound:
		return enums.FailureInventoryNotFound
	case pkgerrors.CodeProductNotFound:
		return enums.FailureProductNotFound
	case pkgerrors.CodeInvalidData, pkgerrors.CodeValidation:
		return enums.FailureInvalidData
	default:
		return enums.FailureTechnicalError
	}
}
