package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/ports"
)

// RegisterRatingRoutes mounts the post-trip rating submission endpoint
// (§3 Rating): either participant may rate the other once the trip has
// completed.
func (h *Handler) RegisterRatingRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /trips/{trip_id}/ratings",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger, account.TypeDriver)(h.handleSubmitRating))
}

type submitRatingRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

func (h *Handler) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	var req submitRatingRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rt, err := h.Rating.SubmitRating(ctxT, ports.SubmitRatingInput{
		TripID: tripID, RaterID: strings.TrimSpace(claims.Subject), Stars: req.Stars, Comment: req.Comment,
	})
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusCreated, rt)
}
