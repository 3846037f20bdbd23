// Package hub streams live state to connected dashboard browsers and
// tracks each browser's ephemeral view selections.
package hub

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/taxi-ops/internal/observability"
	"github.com/example/taxi-ops/internal/state"
	"github.com/example/taxi-ops/internal/view"
)

// Event is what goes down the wire: either a full state snapshot (every
// revision change) or the client's own view state echoed after an action.
type Event struct {
	Type  string      `json:"type"` // snapshot | view_state
	View  *state.View `json:"view,omitempty"`
	State *view.State `json:"state,omitempty"`
}

// ClientMessage is an inbound view action from one dashboard client.
type ClientMessage struct {
	Action string `json:"action"` // select_trip | clear_trip | select_driver | close_driver | set_tab | set_filter | toggle_sidebar
	ID     string `json:"id,omitempty"`
	Tab    string `json:"tab,omitempty"`
	Filter string `json:"filter,omitempty"`
}

// Session is one connected dashboard client.
type Session struct {
	conn  *websocket.Conn
	mu    sync.Mutex
	state view.State
}

func (s *Session) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// ViewState returns the client's current selections.
func (s *Session) ViewState() view.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) apply(msg ClientMessage) view.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	applyMessage(&s.state, msg)
	return s.state
}

// applyMessage mutates view state for one client action. Unknown actions
// are ignored; a hostile client cannot break the session.
func applyMessage(st *view.State, msg ClientMessage) {
	switch msg.Action {
	case "select_trip":
		st.SelectTrip(msg.ID)
	case "clear_trip":
		st.ClearTrip()
	case "select_driver":
		st.SelectDriver(msg.ID)
	case "close_driver":
		st.CloseDriverDetail()
	case "set_tab":
		st.SetTab(view.Tab(msg.Tab))
	case "set_filter":
		st.SetFilter(view.DriverFilter(msg.Filter))
	case "toggle_sidebar":
		st.ToggleSidebar()
	}
}

// Hub holds dashboard sessions and broadcasts every state revision.
type Hub struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, sessions: make(map[string]*Session)}
}

// Add registers a connection, pushes the current snapshot immediately and
// services the client's view actions until the connection drops.
func (h *Hub) Add(id string, conn *websocket.Conn, current state.View) {
	s := &Session{conn: conn, state: view.NewState()}

	h.mu.Lock()
	h.sessions[id] = s
	count := len(h.sessions)
	h.mu.Unlock()
	observability.DashboardClients.Set(float64(count))

	if err := s.send(Event{Type: "snapshot", View: &current}); err != nil {
		h.logger.Warn("initial snapshot send failed", "session", id, "error", err)
		h.Remove(id)
		return
	}

	go h.readLoop(id, s)
}

func (h *Hub) readLoop(id string, s *Session) {
	defer h.Remove(id)
	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		st := s.apply(msg)
		if err := s.send(Event{Type: "view_state", State: &st}); err != nil {
			return
		}
	}
}

// Remove drops a session; idempotent.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	count := len(h.sessions)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
	observability.DashboardClients.Set(float64(count))
}

// Broadcast pushes a state revision to every connected client. Clients
// whose socket errors are dropped on the spot.
func (h *Hub) Broadcast(v state.View) {
	h.mu.RLock()
	targets := make(map[string]*Session, len(h.sessions))
	for id, s := range h.sessions {
		targets[id] = s
	}
	h.mu.RUnlock()

	ev := Event{Type: "snapshot", View: &v}
	for id, s := range targets {
		if err := s.send(ev); err != nil {
			h.logger.Warn("ws send error, dropping session", "session", id, "error", err)
			h.Remove(id)
		}
	}
}
