package controllers

import (
	"net/http"

	"github.com/janisliepins/stockflow-backend/api/responses"
	"github.com/janisliepins/stockflow-backend/api/validators"
	alertsvc "github.com/janisliepins/stockflow-backend/internal/alerts"
	"github.com/janisliepins/stockflow-backend/pkg/logger"
	"github.com/janisliepins/stockflow-backend/pkg/pagination"
)

func ListAlerts(svc alertsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		openOnly, err := validators.ParseQueryBool(r, "open")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), alertsvc.ListParams{
			Limit:          limit,
			Cursor:         r.URL.Query().Get("cursor"),
			Unacknowledged: openOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AcknowledgeAlert(svc alertsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamInt64(r, "alertID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		alert, err := svc.Acknowledge(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}
