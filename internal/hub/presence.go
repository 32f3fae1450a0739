// ABOUTME: Presence announcer broadcasting join/leave notices to all live sessions
// ABOUTME: Doubles as the broadcast-to-all primitive shared with collaborating services

package hub

import (
	"log/slog"
	"time"

	"github.com/mentorconnect/chatd/internal/registry"
)

// systemSender is the sender name on system notices.
const systemSender = "System"

// Announcer broadcasts system notices to every registered session. Presence
// join/leave events flow through it, and other services (like the server
// time notifier) hold a reference to the same Broadcast primitive.
// Broadcast is fire-and-forget: per originating event source the notices are
// FIFO, but no ordering holds across sources.
type Announcer struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewAnnouncer creates an announcer over the given registry.
func NewAnnouncer(reg *registry.Registry, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		registry: reg,
		logger:   logger.With("component", "presence"),
	}
}

// Broadcast delivers a system notice to every live session. Delivery is
// best-effort; closed or slow sessions are skipped.
func (a *Announcer) Broadcast(text string) {
	evt := registry.Event{
		Type:    registry.EventSystem,
		Sender:  systemSender,
		Content: text,
		SentAt:  time.Now().UTC(),
	}
	for _, session := range a.registry.AllSessions() {
		session.Deliver(evt)
	}
}

// AnnounceJoin broadcasts that a session joined, to all sessions including
// the new one.
func (a *Announcer) AnnounceJoin(sessionID string) {
	a.logger.Info("client connected", "session_id", sessionID)
	a.Broadcast(sessionID + " joined the chat")
}

// AnnounceLeave broadcasts that a session left, to all remaining sessions.
func (a *Announcer) AnnounceLeave(sessionID string) {
	a.logger.Info("client disconnected", "session_id", sessionID)
	a.Broadcast(sessionID + " left the chat")
}
