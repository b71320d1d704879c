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

// RegisterChatRoutes mounts §4.6's REST fallback for trip chat — the
// primary path is over the WebSocket (internal/eventbus/handlers.go), but
// a REST surface lets a client fetch history or mark-read without holding
// an open socket.
func (h *Handler) RegisterChatRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /trips/{trip_id}/messages",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger, account.TypeDriver)(h.handleSendMessage))
	mux.HandleFunc("GET /trips/{trip_id}/messages",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger, account.TypeDriver)(h.handleListMessages))
	mux.HandleFunc("POST /trips/{trip_id}/messages/read",
		jwt.AuthMiddlewareFunc(h.Auth, account.TypePassenger, account.TypeDriver)(h.handleMarkRead))
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	var req sendMessageRequest
	if err := h.decodeStrict(w, r, &req); err != nil {
		h.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := h.Chat.SendMessage(ctxT, ports.SendMessageInput{
		TripID: tripID, FromUserID: strings.TrimSpace(claims.Subject), Text: req.Text,
	})
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusCreated, msg)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msgs, err := h.Chat.ListMessages(ctxT, tripID)
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, msgs)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := h.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)
	if claims == nil {
		h.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return
	}
	tripID := r.PathValue("trip_id")

	ctxT, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := h.Chat.MarkRead(ctxT, tripID, strings.TrimSpace(claims.Subject))
	if err != nil {
		h.writeServiceErr(ctx, w, err)
		return
	}
	h.jsonResponse(ctx, w, http.StatusOK, map[string]int{"marked_read": n})
}
