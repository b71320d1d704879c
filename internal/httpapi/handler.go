// Package httpapi adapts HTTP requests to the dispatch-core services
// (C3-C9). Grounded on internal/software/ride/handler's RideHTTPHandler
// shape: one struct per process holding every service it exposes, strict
// JSON decoding, jsonResponse/httpError helpers, and a request-ID-bearing
// context threaded through every call.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/ports"
)

// Handler adapts HTTP requests to the dispatch-core services. Not every
// field is populated in every process: cmd/driver_location_service wires
// only Presence, cmd/admin_service wires only Admin (its cleanup sweeps
// run on a timer, not over HTTP), and
// cmd/ride_service wires the rest.
type Handler struct {
	Logger   *logger.Logger
	Auth     *jwt.Manager
	Presence ports.PresenceService
	Dispatch ports.DispatchService
	Trips    ports.TripStateService
	Earnings ports.EarningsService
	Chat     ports.ChatService
	Rating   ports.RatingService
	Admin    ports.AdminService
}

// New constructs an httpapi Handler with no services set. Each process
// assigns the services it hosts to the matching fields and registers only
// their routes.
func New(log *logger.Logger, auth *jwt.Manager) *Handler {
	return &Handler{Logger: log, Auth: auth}
}

// TokenRequest is the dev-only token-minting request body.
type TokenRequest struct {
	UserID string      `json:"user_id"`
	Role   account.Type `json:"role"`
}

// TokenResponse is the dev-only token-minting response body.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt string    `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      account.Type `json:"role"`
}

// handleCreateToken mints a short-lived JWT for a seeded account. Dev/test
// convenience only — mirrors cli.GenerateUserToken but over HTTP so
// integration tests and local tooling don't need a CLI invocation.
func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)

	var req TokenRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		h.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if !req.Role.Valid() {
		h.httpError(ctx, w, http.StatusBadRequest, "role must be one of PASSENGER, DRIVER, PARTNER, ADMIN", nil)
		return
	}

	token, claims, err := h.Auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		h.httpError(ctx, w, http.StatusInternalServerError, "failed to issue token", err)
		return
	}

	h.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time.Format("2006-01-02T15:04:05Z07:00"),
		UserID:    req.UserID,
		Role:      req.Role,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterDevRoutes mounts the dev-only token mint and the health probe
// every process exposes regardless of which domain services it hosts.
func (h *Handler) RegisterDevRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /tokens", h.handleCreateToken)
	mux.HandleFunc("GET /health", h.handleHealth)
}

// ----- shared request/response plumbing -----

// decodeStrict enforces Content-Type, a 1 MiB body cap, and rejects
// unknown fields, matching the teacher's handleCreateRide boundary checks.
func (h *Handler) decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *Handler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error
	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			h.Logger.Error(ctx, "response_encode_failed", "failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

type errBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"error"`
}

func (h *Handler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	h.Logger.Error(ctx, action, msg, err, nil)

	code := ""
	if e, ok := apperr.As(err); ok {
		code = e.Code
	}
	h.jsonResponse(ctx, w, status, errBody{Code: code, Message: msg})
}

// writeServiceErr maps a service-layer error (always apperr.Error-shaped,
// per §7) to the HTTP status its Kind implies.
func (h *Handler) writeServiceErr(ctx context.Context, w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		h.httpError(ctx, w, http.StatusInternalServerError, err.Error(), err)
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUnauthenticated:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindPreconditionFailed:
		status = http.StatusPreconditionFailed
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.KindInternal:
		status = http.StatusInternalServerError
	}
	h.httpError(ctx, w, status, e.Message, e)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (h *Handler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return h.Logger.WithRequestID(ctx, reqID)
}

func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
