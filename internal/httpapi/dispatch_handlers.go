package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/ports"
)

// RegisterDispatchRoutes mounts §4.2's offer-loop endpoints.
func (h *Handler) RegisterDispatchRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /trips",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger)(h.handleRequestTrip))
	mux.HandleFunc("POST /trips/{trip_id}/accept",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleAcceptOffer))
	mux.HandleFunc("POST /trips/{trip_id}/decline",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleDeclineOffer))
	mux.HandleFunc("POST /trips/{trip_id}/cancel-search",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger)(h.handleCancelSearch))
}

type requestTripRequest struct {
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	PickupAddress  string  `json:"pickup_address"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	DropoffAddress string  `json:"dropoff_address"`
	DistanceM      int     `json:"distance_m"`
	DurationS      int     `json:"duration_s"`
	FareEstimate   int     `json:"fare_estimate"`
	VehicleType    string  `json:"vehicle_type"`
	PaymentMethod  string  `json:"payment_method"`
}

func (h *Handler) handleRequestTrip(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}

	var req requestTripRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	payment := trip.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod)))
	if !payment.Valid() {
		h.httpError(ctx, w, http.StatusBadRequest, "payment_method must be one of CASH, MOMO, OM", nil)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := h.Dispatch.RequestTrip(ctxT, ports.RequestTripInput{
		PassengerID:    strings.TrimSpace(claims.Subject),
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		PickupAddress:  strings.TrimSpace(req.PickupAddress),
		DropoffLat:     req.DropoffLat,
		DropoffLng:     req.DropoffLng,
		DropoffAddress: strings.TrimSpace(req.DropoffAddress),
		DistanceM:      req.DistanceM,
		DurationS:      req.DurationS,
		FareEstimate:   req.FareEstimate,
		VehicleType:    strings.TrimSpace(req.VehicleType),
		PaymentMethod:  payment,
	})
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusAccepted, res)
}

func (h *Handler) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	t, err := h.Dispatch.AcceptOffer(ctxT, tripID, strings.TrimSpace(claims.Subject))
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, t)
}

func (h *Handler) handleDeclineOffer(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Dispatch.DeclineOffer(ctxT, tripID, strings.TrimSpace(claims.Subject)); err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "declined"})
}

func (h *Handler) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Dispatch.CancelSearch(ctxT, tripID, strings.TrimSpace(claims.Subject)); err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "canceled"})
}
