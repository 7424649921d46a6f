// Package bus is the broadcast fan-out described in spec §4.6: every
// connected session joins a personal room "user:<id>"; the engine pushes
// typed events globally, to one user, or to every admin. It is transport
// agnostic — internal/api owns the websocket upgrade and pumps Session.Send
// onto the wire, mirroring the teacher's internal/api/websocket.go relay
// loop generalized from a single-topic relay to the full room-addressed bus.
package bus

import (
	"encoding/json"
	"log"
	"sync"
)

// Session is one connected client. The transport layer (internal/api) owns
// the socket; Bus only owns routing and the outbound buffer.
type Session struct {
	ID     string
	UserID string
	Role   string

	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// Send returns the outbound channel the transport layer should pump onto
// the wire. Closed when Unregister is called.
func (s *Session) Send() <-chan []byte { return s.send }

func (s *Session) enqueue(data []byte) {
	select {
	case s.send <- data:
	case <-s.closed:
	default:
		log.Printf("bus: dropping message for slow session %s (user %s)", s.ID, s.UserID)
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.send)
	})
}

// Bus is the process-wide connection registry and fan-out router.
type Bus struct {
	mu       sync.RWMutex
	sessions map[string]*Session   // sessionID -> session
	byUser   map[string][]*Session // userID -> sessions (a user may have multiple tabs)
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		sessions: make(map[string]*Session),
		byUser:   make(map[string][]*Session),
	}
}

// Register creates and tracks a new session for an authenticated connection.
func (b *Bus) Register(sessionID, userID, role string, sendBuffer int) *Session {
	s := &Session{
		ID:     sessionID,
		UserID: userID,
		Role:   role,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[sessionID] = s
	b.byUser[userID] = append(b.byUser[userID], s)
	return s
}

// Unregister removes a session and closes its outbound channel.
func (b *Bus) Unregister(s *Session) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s.ID)
	peers := b.byUser[s.UserID]
	for i, p := range peers {
		if p == s {
			b.byUser[s.UserID] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(b.byUser[s.UserID]) == 0 {
		delete(b.byUser, s.UserID)
	}
	s.close()
}

func encode(event Event, payload any) []byte {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("bus: failed to encode event %s: %v", event, err)
		return nil
	}
	return data
}

// GlobalEmit pushes an event to every connected session.
func (b *Bus) GlobalEmit(event Event, payload any) {
	data := encode(event, payload)
	if data == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sessions {
		s.enqueue(data)
	}
}

// ToUser pushes an event to every session belonging to one user (room
// "user:<id>").
func (b *Bus) ToUser(userID string, event Event, payload any) {
	data := encode(event, payload)
	if data == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.byUser[userID] {
		s.enqueue(data)
	}
}

// ToAdmins pushes an event to every connected session with role ADMIN.
func (b *Bus) ToAdmins(event Event, payload any) {
	data := encode(event, payload)
	if data == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sessions {
		if s.Role == "ADMIN" {
			s.enqueue(data)
		}
	}
}

// ToSession pushes an event to exactly one session, used for request-scoped
// replies (TRADE_SUCCESS/TRADE_ERROR) that must never broadcast.
func (b *Bus) ToSession(s *Session, event Event, payload any) {
	if s == nil {
		return
	}
	data := encode(event, payload)
	if data == nil {
		return
	}
	s.enqueue(data)
}

// ConnectedUserIDs returns the distinct set of currently connected user ids,
// used by the settlement pipeline's per-user ASSETS_UPDATE fan-out.
func (b *Bus) ConnectedUserIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.byUser))
	for userID := range b.byUser {
		out = append(out, userID)
	}
	return out
}
