// Package hub fans out committed encounter state to WebSocket subscribers.
// Each process has one Hub instance owning encounterID → subscriber sets.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dndtracker/dndtracker/pkg/state"
	"github.com/dndtracker/dndtracker/pkg/store"
)

// StateFullType is the type tag on every server→client push message.
// Broadcasts are always full snapshots; there are no deltas.
const StateFullType = "state.full"

// StateMessage is the wire shape of a push message.
type StateMessage struct {
	Type  string      `json:"type"`
	State state.State `json:"state"`
}

// Hub manages WebSocket subscriber sessions per encounter.
type Hub struct {
	store store.EncounterStore

	// Subscriber sets: encounterID → sessionID → *Session
	mu       sync.RWMutex
	sessions map[string]map[string]*Session

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

// Session represents a single subscribed WebSocket client.
type Session struct {
	ID          string
	EncounterID string
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc

	// sendMu serializes writes to this session; lastVersion is the highest
	// version delivered so far, and anything at or below it is dropped as
	// stale. Together they keep each session's message stream strictly
	// increasing even when the initial push races a broadcast.
	sendMu      sync.Mutex
	lastVersion int
}

// New creates a Hub that validates incoming sessions against the store.
func New(encounterStore store.EncounterStore, writeTimeout time.Duration) *Hub {
	return &Hub{
		store:        encounterStore,
		sessions:     make(map[string]map[string]*Session),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of one subscriber. It authorizes the
// token via the store, registers the session, pushes the current full state,
// then blocks reading (and discarding) client frames until the connection
// closes. Unauthorized sessions are refused with close code 1008.
//
// Registration happens before the initial state read: any version committed
// after the read is therefore broadcast to this session, and the per-session
// version gate in sendVersioned drops whichever of the two arrivals is stale.
// A subscriber's first message is thus the newest state at connect time, and
// every later committed version follows with no gaps.
func (h *Hub) HandleConnection(parentCtx context.Context, encounterID, rawToken string, conn *websocket.Conn) {
	if _, err := h.store.GetAccess(parentCtx, encounterID, rawToken); err != nil {
		slog.Warn("Refusing WebSocket session", "encounter_id", encounterID, "error", err)
		_ = conn.Close(websocket.StatusPolicyViolation, "encounter not found or token invalid")
		return
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s := &Session{
		ID:          uuid.New().String(),
		EncounterID: encounterID,
		conn:        conn,
		ctx:         ctx,
		cancel:      cancel,
	}

	h.register(s)
	defer h.unregister(s)

	// Re-read after registration: a commit that broadcast before the session
	// was registered is now visible to this read.
	st, err := h.store.GetState(ctx, encounterID, rawToken)
	if err != nil {
		slog.Warn("Failed to load initial state", "session_id", s.ID, "error", err)
		return
	}
	if err := h.sendState(s, *st); err != nil {
		slog.Warn("Failed to send initial state", "session_id", s.ID, "error", err)
		return
	}

	// Read loop: inbound frames are used only to detect disconnection.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// BroadcastState delivers a committed state snapshot to every current
// subscriber of the encounter. Delivery is best-effort: sessions whose send
// fails are marked and disconnected after the iteration, and a failed
// delivery never rolls back the mutation.
func (h *Hub) BroadcastState(encounterID string, st state.State) {
	// Snapshot session pointers under the lock, then release before sending
	// so slow writes (up to writeTimeout each) don't stall register/unregister.
	h.mu.RLock()
	set, exists := h.sessions[encounterID]
	if !exists {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Session, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(StateMessage{Type: StateFullType, State: st})
	if err != nil {
		slog.Error("Failed to marshal state broadcast", "encounter_id", encounterID, "error", err)
		return
	}

	var failed []*Session
	for _, s := range targets {
		if err := h.sendVersioned(s, st.Version, payload); err != nil {
			slog.Warn("Failed to send to WebSocket subscriber",
				"session_id", s.ID, "encounter_id", encounterID, "error", err)
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		h.unregister(s)
	}
}

// SubscriberCount returns the number of live subscribers for an encounter.
func (h *Hub) SubscriberCount(encounterID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[encounterID])
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.EncounterID]
	if !ok {
		set = make(map[string]*Session)
		h.sessions[s.EncounterID] = set
	}
	set[s.ID] = s
}

// unregister removes a session; the encounter's entry is dropped once its
// set is empty. Safe to call more than once for the same session.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.EncounterID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.sessions, s.EncounterID)
		}
	}
	h.mu.Unlock()

	s.cancel()
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) sendState(s *Session, st state.State) error {
	payload, err := json.Marshal(StateMessage{Type: StateFullType, State: st})
	if err != nil {
		return err
	}
	return h.sendVersioned(s, st.Version, payload)
}

// sendVersioned delivers one state payload to a session unless the session
// has already seen that version or a newer one. The session's send mutex is
// held across the write so concurrent deliveries cannot interleave or
// reorder.
func (h *Hub) sendVersioned(s *Session, version int, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if version <= s.lastVersion {
		return nil
	}
	if err := h.sendRaw(s, data); err != nil {
		return err
	}
	s.lastVersion = version
	return nil
}

// sendRaw sends raw bytes to a single session with a write timeout. A timed
// out or cancelled send counts as a transport failure.
func (h *Hub) sendRaw(s *Session, data []byte) error {
	writeCtx, cancel := context.WithTimeout(s.ctx, h.writeTimeout)
	defer cancel()
	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("send timed out")
		}
		return err
	}
	return nil
}
