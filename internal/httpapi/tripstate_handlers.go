package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/jwt"
)

// RegisterTripStateRoutes mounts §4.3's trip lifecycle transitions.
func (h *Handler) RegisterTripStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /trips/{trip_id}/en-route",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleDriverEnRoute))
	mux.HandleFunc("POST /trips/{trip_id}/arrived",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleDriverArrived))
	mux.HandleFunc("POST /trips/{trip_id}/start",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleStartTrip))
	mux.HandleFunc("POST /trips/{trip_id}/complete",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleCompleteTrip))
	mux.HandleFunc("POST /trips/{trip_id}/cancel",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger, account.TypeDriver, account.TypeAdmin)(h.handleCancelTrip))
	mux.HandleFunc("POST /trips/{trip_id}/no-show",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleMarkNoShow))
	mux.HandleFunc("GET /trips/{trip_id}",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger, account.TypeDriver, account.TypeAdmin)(h.handleGetTrip))
}

func (h *Handler) handleDriverEnRoute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, tripID, actorID string) (*trip.Trip, error) {
		return h.Trips.DriverEnRoute(ctx, tripID, actorID)
	})
}

func (h *Handler) handleDriverArrived(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, tripID, actorID string) (*trip.Trip, error) {
		return h.Trips.DriverArrived(ctx, tripID, actorID)
	})
}

func (h *Handler) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, tripID, actorID string) (*trip.Trip, error) {
		return h.Trips.StartTrip(ctx, tripID, actorID)
	})
}

func (h *Handler) handleMarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, tripID, actorID string) (*trip.Trip, error) {
		return h.Trips.MarkNoShow(ctx, tripID, actorID)
	})
}

// transition runs the common shape shared by the zero-body driver
// transitions: authenticate, pull trip_id, bound the call, respond.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, tripID, actorID string) (*trip.Trip, error)) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	t, err := call(ctxT, tripID, strings.TrimSpace(claims.Subject))
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, t)
}

type completeTripRequest struct {
	FareFinal int `json:"fare_final"`
}

func (h *Handler) handleCompleteTrip(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	var req completeTripRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	t, err := h.Trips.CompleteTrip(ctxT, tripID, strings.TrimSpace(claims.Subject), req.FareFinal)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, t)
}

type cancelTripRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelTrip(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	var req cancelTripRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	by := trip.CanceledByPassenger
	switch claims.Role {
	case account.TypeDriver:
		by = trip.CanceledByDriver
	case account.TypeAdmin:
		by = trip.CanceledBySystem
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	t, err := h.Trips.CancelTrip(ctxT, tripID, strings.TrimSpace(claims.Subject), by, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, t)
}

func (h *Handler) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	t, err := h.Trips.GetTrip(ctxT, tripID)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, t)
}
