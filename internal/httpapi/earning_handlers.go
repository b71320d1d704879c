package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/jwt"
)

// RegisterEarningsRoutes mounts §4.5's driver-facing wallet summary read and
// the admin-only settlement retry tool.
func (h *Handler) RegisterEarningsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /drivers/{driver_id}/wallet",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver, account.TypeAdmin)(h.handleGetWalletSummary))
	mux.HandleFunc("POST /trips/{trip_id}/settlement/retry",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeAdmin)(h.handleRetrySettlement))
}

func (h *Handler) handleGetWalletSummary(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	driverID := r.PathValue("driver_id")
	if claims.Role == account.TypeDriver && strings.TrimSpace(claims.Subject) != driverID {
		h.httpError(ctx, w, http.StatusForbidden, "driver_id does not match token subject", nil)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	summary, err := h.Earnings.GetWalletSummary(ctxT, driverID)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, summary)
}

// handleRetrySettlement is the operator tool for a trip whose completion
// posted no receipt — a process crash between InsertPending and Settle, for
// instance. Admin-only: it bypasses the trip state machine entirely and acts
// directly on the durable trip row.
func (h *Handler) handleRetrySettlement(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := h.Earnings.RetrySettlement(ctxT, tripID)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, result)
}
