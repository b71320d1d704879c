package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/ports"
)

// RegisterPresenceRoutes mounts §4.1's driver presence endpoints.
func (h *Handler) RegisterPresenceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /drivers/{driver_id}/online",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleGoOnline))
	mux.HandleFunc("POST /drivers/{driver_id}/offline",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleGoOffline))
	mux.HandleFunc("POST /drivers/{driver_id}/location",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleUpdateLocation))
	mux.HandleFunc("POST /drivers/{driver_id}/available",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleMarkAvailable))
	mux.HandleFunc("POST /drivers/{driver_id}/unavailable",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypeDriver)(h.handleMarkUnavailable))
}

func (h *Handler) requireOwnDriver(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	driverID := r.PathValue("driver_id")
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return "", false
	}
	if strings.TrimSpace(claims.Subject) != driverID {
		h.httpError(ctx, w, http.StatusForbidden, "driver_id does not match token subject", nil)
		return "", false
	}
	return driverID, true
}

type goOnlineRequest struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	VehicleType string  `json:"vehicle_type"`
}

func (h *Handler) handleGoOnline(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	driverID, ok := h.requireOwnDriver(ctx, w, r)
	if !ok {
		return
	}

	var req goOnlineRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := h.Presence.GoOnline(ctxT, ports.GoOnlineInput{
		DriverID: driverID, Latitude: req.Latitude, Longitude: req.Longitude, VehicleType: req.VehicleType,
	})
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, res)
}

func (h *Handler) handleGoOffline(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	driverID, ok := h.requireOwnDriver(ctx, w, r)
	if !ok {
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := h.Presence.GoOffline(ctxT, driverID)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, res)
}

type updateLocationRequest struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
	SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
}

func (h *Handler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	driverID, ok := h.requireOwnDriver(ctx, w, r)
	if !ok {
		return
	}

	var req updateLocationRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := h.Presence.UpdateLocation(ctxT, ports.UpdateLocationInput{
		DriverID: driverID, Latitude: req.Latitude, Longitude: req.Longitude,
		AccuracyMeters: req.AccuracyMeters, SpeedKmh: req.SpeedKmh, HeadingDegrees: req.HeadingDegrees,
	})
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "ack"})
}

func (h *Handler) handleMarkAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	driverID, ok := h.requireOwnDriver(ctx, w, r)
	if !ok {
		return
	}
	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Presence.MarkAvailable(ctxT, driverID); err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "available"})
}

func (h *Handler) handleMarkUnavailable(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	driverID, ok := h.requireOwnDriver(ctx, w, r)
	if !ok {
		return
	}
	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Presence.MarkUnavailable(ctxT, driverID); err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "unavailable"})
}

// parseLimit reads a bounded "limit" query param, defaulting to def.
func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
