package httpapi

import (
	"context"
	"net/http"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/jwt"
)

// RegisterAdminRoutes mounts the supplemented admin overview endpoint.
func (h *Handler) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/overview",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeAdmin)(h.handleGetSystemOverview))
}

func (h *Handler) handleGetSystemOverview(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := h.Admin.GetSystemOverview(ctxT)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, res)
}
