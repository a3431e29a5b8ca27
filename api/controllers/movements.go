package controllers

import (
	"net/http"

	"github.com/janisliepins/stockflow-backend/api/responses"
	"github.com/janisliepins/stockflow-backend/api/validators"
	movementsvc "github.com/janisliepins/stockflow-backend/internal/movements"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

// ListInventoryMovements returns the audit trail for one inventory row,
// newest first.
func ListInventoryMovements(svc movementsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inventoryID, err := validators.URLParamInt64(r, "inventoryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movements, err := svc.ListByInventory(r.Context(), inventoryID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"movements": movements})
	}
}

// ListOrderMovements returns every stock movement an order caused, in the
// order they happened.
func ListOrderMovements(svc movementsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.URLParamInt64(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movements, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"movements": movements})
	}
}
