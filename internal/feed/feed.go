package feed

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one operational decision pushed to connected dashboards.
type Event struct {
	Type      string    `json:"type"` // anomaly_flagged, payout_processed, driver_assigned, price_quoted
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Session wraps one dashboard connection; writes are serialized.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Registry holds connected admin dashboard sessions and broadcasts ops
// events to all of them, dropping sessions whose writes fail.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[*Session]struct{})}
}

func (r *Registry) Add(conn *websocket.Conn) *Session {
	s := &Session{conn: conn}
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
	return s
}

func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
	_ = s.conn.Close()
}

// Broadcast is best-effort: a dead session is evicted, never retried.
func (r *Registry) Broadcast(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		if err := s.send(ev); err != nil {
			log.Printf("feed send error: %v", err)
			r.Remove(s)
		}
	}
}
