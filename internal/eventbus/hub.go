package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"ride-hail/internal/domain/account"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// session is one authenticated, in-process WebSocket connection. Grounded
// on the teacher's WebSocket struct (internal/general/websocket/upgrader.go):
// a single write mutex per connection, since gorilla/websocket forbids
// concurrent writers on the same *Conn.
type session struct {
	conn   *websocket.Conn
	userID string
	role   account.Type
	mu     sync.Mutex
}

func (s *session) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *session) writeControl(messageType int, data []byte, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(messageType, data, deadline)
}

// hub is the in-process room registry: which connections are in which
// rooms, addressable by a caller-assigned connection id. It knows nothing
// about other instances of dispatch_service — that is bus's job.
type hub struct {
	sessions sync.Map // connectionID string -> *session
	rooms    sync.Map // room string -> *sync.Map (connectionID string -> struct{})
}

func newHub() *hub { return &hub{} }

func (h *hub) register(connectionID string, s *session) {
	h.sessions.Store(connectionID, s)
}

func (h *hub) unregister(connectionID string) {
	h.sessions.Delete(connectionID)
	h.rooms.Range(func(_, v any) bool {
		members := v.(*sync.Map)
		members.Delete(connectionID)
		return true
	})
}

func (h *hub) join(connectionID, room string) {
	v, _ := h.rooms.LoadOrStore(room, &sync.Map{})
	members := v.(*sync.Map)
	members.Store(connectionID, struct{}{})
}

func (h *hub) leave(connectionID, room string) {
	if v, ok := h.rooms.Load(room); ok {
		members := v.(*sync.Map)
		members.Delete(connectionID)
	}
}

func (h *hub) sessionByID(connectionID string) (*session, bool) {
	v, ok := h.sessions.Load(connectionID)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

// broadcastLocal delivers to every session in room that this process holds
// a connection for. Rooms with no local members are a silent no-op — the
// event still reached every other instance via the fanout bridge.
func (h *hub) broadcastLocal(room string, v any) {
	members, ok := h.rooms.Load(room)
	if !ok {
		return
	}
	members.(*sync.Map).Range(func(connID, _ any) bool {
		s, ok := h.sessionByID(connID.(string))
		if !ok {
			return true
		}
		_ = s.writeJSON(v)
		return true
	})
}
