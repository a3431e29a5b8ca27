package controllers

import (
	"context"
	"net/http"

	"github.com/janisliepins/stockflow-backend/api/responses"
	"github.com/janisliepins/stockflow-backend/api/validators"
	inventorysvc "github.com/janisliepins/stockflow-backend/internal/inventory"
	"github.com/janisliepins/stockflow-backend/pkg/db/models"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

type createInventoryRequest struct {
	ProductID        int64 `json:"product_id" validate:"required,gt=0"`
	Quantity         int   `json:"quantity" validate:"min=0"`
	ReorderLevel     int   `json:"reorder_level" validate:"min=0"`
	ClearLowQuantity int   `json:"clear_low_quantity" validate:"min=0"`
}

type adjustInventoryRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type stockQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type stockReservationRequest struct {
	Quantity int   `json:"quantity" validate:"required,gt=0"`
	OrderID  int64 `json:"order_id" validate:"required,gt=0"`
}

type availableStockResponse struct {
	ProductID int64 `json:"product_id"`
	Available int   `json:"available"`
}

type updateLevelsRequest struct {
	ReorderLevel     int `json:"reorder_level" validate:"min=0"`
	ClearLowQuantity int `json:"clear_low_quantity" validate:"min=0"`
}

func CreateInventory(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.Create(r.Context(), inventorysvc.CreateInput{
			ProductID:        payload.ProductID,
			Quantity:         payload.Quantity,
			ReorderLevel:     payload.ReorderLevel,
			ClearLowQuantity: payload.ClearLowQuantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, inv)
	}
}

func GetInventory(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamInt64(r, "inventoryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}

func GetInventoryByProduct(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamInt64(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.GetByProductID(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}

func ListInventory(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lowOnly, err := validators.ParseQueryBool(r, "low")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), inventorysvc.ListParams{
			Limit:   limit,
			Cursor:  r.URL.Query().Get("cursor"),
			LowOnly: lowOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdjustInventory applies a signed manual stock correction.
func AdjustInventory(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamInt64(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.Adjust(r.Context(), inventorysvc.AdjustInput{
			ProductID: productID,
			Delta:     payload.Delta,
			Reason:    payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}

func AddStock(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stockQuantityHandler(logg, svc.AddStock)
}

func ReduceStock(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stockQuantityHandler(logg, svc.ReduceStock)
}

func ReserveStock(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stockReservationHandler(logg, svc.ReserveStock)
}

func CancelReservation(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stockReservationHandler(logg, svc.CancelReservation)
}

func FulfillReservation(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return stockReservationHandler(logg, svc.FulfillReservation)
}

func GetAvailableStock(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamInt64(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.GetAvailable(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availableStockResponse{ProductID: productID, Available: available})
	}
}

func stockQuantityHandler(logg *logger.Logger, op func(ctx context.Context, productID int64, qty int) (*models.Inventory, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamInt64(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload stockQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := op(r.Context(), productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}

func stockReservationHandler(logg *logger.Logger, op func(ctx context.Context, input inventorysvc.StockOpInput) (*models.Inventory, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamInt64(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload stockReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := op(r.Context(), inventorysvc.StockOpInput{
			ProductID: productID,
			Quantity:  payload.Quantity,
			OrderID:   payload.OrderID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}

func UpdateInventoryLevels(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamInt64(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateLevelsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.UpdateLevels(r.Context(), inventorysvc.UpdateLevelsInput{
			ProductID:        productID,
			ReorderLevel:     payload.ReorderLevel,
			ClearLowQuantity: payload.ClearLowQuantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, inv)
	}
}
