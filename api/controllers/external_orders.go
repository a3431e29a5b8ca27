package controllers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/janisliepins/stockflow-backend/api/responses"
	"github.com/janisliepins/stockflow-backend/api/validators"
	"github.com/janisliepins/stockflow-backend/internal/external"
	"github.com/janisliepins/stockflow-backend/pkg/enums"
	pkgerrors "github.com/janisliepins/stockflow-backend/pkg/errors"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
)

type ingestItemRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type ingestOrderRequest struct {
	ExternalOrderID string              `json:"external_order_id" validate:"required"`
	ShippingAddress *string             `json:"shipping_address,omitempty"`
	Items           []ingestItemRequest `json:"items" validate:"required,min=1,dive"`
}

// statusPath is the polling location answered on ingest and cancel.
func statusPath(source enums.ExternalOrderSource, externalOrderID string) string {
	return fmt.Sprintf("/api/v1/external/%s/orders/%s", strings.ToLower(string(source)), url.PathEscape(externalOrderID))
}

func sourceFromPath(r *http.Request) (enums.ExternalOrderSource, error) {
	raw := chi.URLParam(r, "source")
	source, err := enums.ParseExternalOrderSource(strings.ToUpper(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source")
	}
	return source, nil
}

// IngestExternalOrder accepts an order handed over by a sales channel.
// Repeated deliveries of the same order are answered from the stored row.
func IngestExternalOrder(svc external.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, err := sourceFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload ingestOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]external.IngestItem, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, external.IngestItem{SKU: item.SKU, Quantity: item.Quantity})
		}

		result, err := svc.Ingest(r.Context(), external.IngestInput{
			Source:          source,
			ExternalOrderID: payload.ExternalOrderID,
			ShippingAddress: payload.ShippingAddress,
			Items:           items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusAccepted
		if result.Duplicate {
			status = http.StatusOK
		}
		w.Header().Set("Location", statusPath(source, payload.ExternalOrderID))
		responses.WriteSuccessStatus(w, status, result)
	}
}

func CancelExternalOrder(svc external.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, err := sourceFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		externalOrderID := chi.URLParam(r, "externalOrderID")
		outcome, err := svc.Cancel(r.Context(), external.CancelInput{
			Source:          source,
			ExternalOrderID: externalOrderID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Location", statusPath(source, externalOrderID))
		responses.WriteSuccessStatus(w, http.StatusAccepted, outcome)
	}
}

func ExternalOrderStatus(svc external.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, err := sourceFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Status(r.Context(), source, chi.URLParam(r, "externalOrderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
