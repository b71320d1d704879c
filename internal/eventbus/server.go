package eventbus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/ports"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsAuthDeadline = 10 * time.Second
	wsIdleDeadline = 60 * time.Second
	wsPingEvery    = 30 * time.Second
	wsCtrlDeadline = 5 * time.Second
)

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

// Server upgrades HTTP connections to authenticated WebSocket sessions and
// routes inbound wire events to the trip services (§4.4). Grounded on
// internal/general/websocket/upgrader.go's ConnectDriver/ConnectPassenger
// shape: JWT-over-first-frame auth, read-deadline handshake, a detached
// ping loop, then a blocking read loop that dispatches by message type.
type Server struct {
	log       *logger.Logger
	jwtMgr    *jwt.Manager
	gw        *Gateway
	presence  ports.PresenceService
	dispatch  ports.DispatchService
	tripstate ports.TripStateService
	chat      ports.ChatService
}

func NewServer(
	log *logger.Logger,
	jwtMgr *jwt.Manager,
	gw *Gateway,
	presence ports.PresenceService,
	dispatch ports.DispatchService,
	tripstate ports.TripStateService,
	chat ports.ChatService,
) *Server {
	return &Server{log: log, jwtMgr: jwtMgr, gw: gw, presence: presence, dispatch: dispatch, tripstate: tripstate, chat: chat}
}

// ConnectDriver upgrades and serves a driver's WebSocket connection.
func (srv *Server) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	srv.serve(w, r, account.TypeDriver, r.PathValue("driver_id"))
}

// ConnectPassenger upgrades and serves a passenger's WebSocket connection.
func (srv *Server) ConnectPassenger(w http.ResponseWriter, r *http.Request) {
	srv.serve(w, r, account.TypePassenger, r.PathValue("passenger_id"))
}

func (srv *Server) serve(w http.ResponseWriter, r *http.Request, role account.Type, pathID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Error(r.Context(), "ws_upgrade_failed", "Failed to upgrade WebSocket", err, nil)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	if err := conn.SetReadDeadline(time.Now().Add(wsAuthDeadline)); err != nil {
		srv.log.Error(r.Context(), "ws_deadline_failed", "Failed to set auth deadline", err, nil)
		return
	}

	mt, frame, err := conn.ReadMessage()
	if err != nil || mt != websocket.TextMessage {
		srv.writeAuthError(conn, "authentication timeout: send the auth frame first")
		return
	}

	res, err := jwt.ValidateWSAuth(frame, srv.jwtMgr, role)
	if err != nil {
		srv.writeAuthError(conn, "authentication failed: invalid token")
		return
	}
	userID := res.Claims.Subject
	if pathID != "" && pathID != userID {
		srv.writeAuthError(conn, "path id does not match token subject")
		return
	}

	connID := uuid.NewString()
	s := &session{conn: conn, userID: userID, role: role}
	srv.gw.hub.register(connID, s)
	defer srv.gw.hub.unregister(connID)

	// Room join order (§4.4): join before persisting the socket index, so a
	// fan-out landing in the gap between the two can never miss this user.
	roleRoom := "driver:" + userID
	if role == account.TypePassenger {
		roleRoom = "passenger:" + userID
	}
	srv.gw.hub.join(connID, "user:"+userID)
	srv.gw.hub.join(connID, roleRoom)
	defer srv.gw.hub.leave(connID, "user:"+userID)
	defer srv.gw.hub.leave(connID, roleRoom)

	ctx := r.Context()
	_ = srv.gw.kv.Set(ctx, socketKey(userID), connID, socketTTL)
	defer func() { _ = srv.gw.kv.Del(context.Background(), socketKey(userID)) }()

	_ = s.writeJSON(map[string]any{"type": "auth_success", "user_id": userID})

	if err := srv.gw.ReplayMissed(ctx, connID, userID, time.Time{}); err != nil {
		srv.log.Error(ctx, "ws_replay_failed", "Reconnect replay failed", err, map[string]any{"user_id": userID})
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsIdleDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleDeadline))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go srv.pingLoop(s, stopPing)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				srv.log.Error(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{"user_id": userID})
			} else {
				srv.log.Info(ctx, "ws_connection_closed", "Connection closed normally", map[string]any{"user_id": userID})
			}
			return
		}

		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &env); err != nil {
			_ = s.writeJSON(map[string]any{"type": "error", "error": "bad json"})
			continue
		}

		if role == account.TypeDriver {
			srv.handleDriverMessage(ctx, s, userID, env.Type, env.Data)
		} else {
			srv.handlePassengerMessage(ctx, s, userID, env.Type, env.Data)
		}
	}
}

func (srv *Server) pingLoop(s *session, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.writeControl(websocket.PingMessage, nil, time.Now().Add(wsCtrlDeadline)); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (srv *Server) writeAuthError(conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(map[string]any{"type": "auth_error", "error": msg, "success": false})
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}
