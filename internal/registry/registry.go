// ABOUTME: Process-wide registry mapping user IDs to their live sessions
// ABOUTME: Owns session lifecycle and best-effort buffered event delivery

package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// sessionBufferSize is the outbound channel buffer for each session.
	sessionBufferSize = 64
)

// Event types delivered to sessions.
const (
	EventMessage = "message" // a chat message (receiveMessage)
	EventSystem  = "system"  // a system notice (receiveSystemNotice)
)

// Event is one outbound payload for a live session.
type Event struct {
	Type    string    // EventMessage or EventSystem
	Sender  string    // display name of the sender; "System" for notices
	Content string    // message text or notice text
	SentAt  time.Time // send timestamp for messages, event time for notices
}

// Session is one live, addressable connection belonging to one user.
// A user may hold several sessions at once (multiple tabs or devices).
// Events are delivered through a buffered channel; the transport layer
// drains it and writes to the wire.
type Session struct {
	ID     string
	UserID string

	mu     sync.RWMutex
	events chan Event
	closed bool
}

// Deliver enqueues an event for the session. Returns false if the session is
// closed or its buffer is full; a failed delivery is a no-op, never an error.
func (s *Session) Deliver(evt Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	// Hold the read lock while sending to prevent close during send
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

// Events returns the session's outbound event channel. The channel is closed
// when the session is unregistered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// close marks the session dead and closes its channel. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Registry tracks every live session in the process. All state is in memory
// and discarded on restart; clients reconnect and replay history.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // sessionID -> session
	byUser   map[string]map[string]*Session // userID -> sessionID -> session
	logger   *slog.Logger
}

// New creates an empty registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
		logger:   logger.With("component", "registry"),
	}
}

// Register creates and tracks a new session for the user.
func (r *Registry) Register(userID string) *Session {
	session := &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		events: make(chan Event, sessionBufferSize),
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]*Session)
	}
	r.byUser[userID][session.ID] = session
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("session registered",
		"session_id", session.ID,
		"user_id", userID,
		"total_sessions", total)
	return session
}

// Unregister removes a session and closes its event channel. After Unregister
// returns, SessionsOf no longer reports the session and no further events are
// delivered to it. Unknown session IDs are ignored.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	if userSessions, ok := r.byUser[session.UserID]; ok {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(r.byUser, session.UserID)
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()

	session.close()

	r.logger.Debug("session unregistered",
		"session_id", sessionID,
		"user_id", session.UserID,
		"total_sessions", total)
}

// SessionsOf returns the user's currently live sessions, possibly empty.
func (r *Registry) SessionsOf(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userSessions := r.byUser[userID]
	out := make([]*Session, 0, len(userSessions))
	for _, s := range userSessions {
		out = append(out, s)
	}
	return out
}

// UserOf returns the owning user of a session, and whether it is live.
func (r *Registry) UserOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return session.UserID, true
}

// AllSessions returns a snapshot of every live session.
func (r *Registry) AllSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close unregisters every session and closes their channels.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	for userID := range r.byUser {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}

	r.logger.Debug("registry closed")
}
