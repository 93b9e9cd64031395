package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/aryanmotgi/Arcus-Sheets/api/responses"
	"github.com/aryanmotgi/Arcus-Sheets/api/validators"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
)

// OverrideService is the manual-edit surface of the override store.
type OverrideService interface {
	Get(ctx context.Context, orderID, orderNumber string) (overrides.Record, bool, error)
	Set(ctx context.Context, req overrides.SetRequest) (overrides.Record, error)
}

// OverrideGet looks an override up by ?order_id= or ?order_number=.
func OverrideGet(svc OverrideService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "override service unavailable"))
			return
		}

		orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
		orderNumber := strings.TrimSpace(r.URL.Query().Get("order_number"))
		if orderID == "" && orderNumber == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id or order_number is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrder(ctx, orderID, orderNumber)
		}
		rec, ok, err := svc.Get(ctx, orderID, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "override not found"))
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// OverrideSet applies a manual edit and returns the stored record.
func OverrideSet(svc OverrideService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "override service unavailable"))
			return
		}

		var req overrides.SetRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrder(ctx, req.OrderID, req.OrderNumber)
		}
		rec, err := svc.Set(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "override updated")
		}
		responses.WriteSuccess(w, rec)
	}
}
