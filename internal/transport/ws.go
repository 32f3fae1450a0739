// ABOUTME: WebSocket transport bridging client frames to the hub
// ABOUTME: One goroutine reads inbound frames, one drains session events to the wire

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mentorconnect/chatd/internal/auth"
	"github.com/mentorconnect/chatd/internal/dedupe"
	"github.com/mentorconnect/chatd/internal/hub"
	"github.com/mentorconnect/chatd/internal/registry"
	"github.com/mentorconnect/chatd/internal/store"
)

// Inbound frame operations.
const (
	opSend    = "send"    // dispatch one message to a user
	opHistory = "history" // replay the stored conversation with a user
)

// Outbound event types.
const (
	eventReceiveMessage      = "receiveMessage"
	eventReceiveSystemNotice = "receiveSystemNotice"
)

// Frame is one inbound client request. The optional ID lets clients retry a
// send after a reconnect without producing a duplicate message.
type Frame struct {
	Op      string `json:"op"`
	ID      string `json:"id,omitempty"`
	To      string `json:"to"`
	Content string `json:"content,omitempty"`
}

// WireEvent is one outbound payload written to the client.
type WireEvent struct {
	Type    string    `json:"type"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// Handler upgrades authenticated HTTP requests to websocket sessions. It must
// sit behind the auth middleware; requests without an attached identity are
// rejected.
type Handler struct {
	hub    *hub.Hub
	frames *dedupe.Cache
	logger *slog.Logger
}

// NewHandler creates a websocket handler. The dedupe cache is owned by the
// caller and shared across connections so retries survive a reconnect.
func NewHandler(h *hub.Hub, frames *dedupe.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    h,
		frames: frames,
		logger: logger.With("component", "transport"),
	}
}

// ServeHTTP upgrades the connection, registers a session for the
// authenticated user, and pumps frames until either side drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	session := h.hub.Connect(identity.UserID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer h.hub.Disconnect(session.ID)

	go h.writePump(ctx, cancel, conn, session)

	h.readLoop(ctx, conn, session)
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop decodes inbound frames until the client disconnects or the
// connection context is cancelled by a failed write.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, session *registry.Session) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				h.logger.Debug("client closed connection", "session_id", session.ID)
			case ctx.Err() != nil:
				// Cancelled by the write pump, already logged there.
			default:
				h.logger.Debug("read failed",
					"session_id", session.ID,
					"error", err)
			}
			return
		}
		h.handleFrame(ctx, session, frame)
	}
}

// writePump drains the session's event channel onto the wire. The channel is
// closed when the session is unregistered, which ends the loop.
func (h *Handler) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, session *registry.Session) {
	for evt := range session.Events() {
		if err := wsjson.Write(ctx, conn, toWire(evt)); err != nil {
			h.logger.Debug("write failed, dropping connection",
				"session_id", session.ID,
				"error", err)
			cancel()
			return
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, session *registry.Session, frame Frame) {
	if frame.ID != "" && h.frames.CheckAndMark(session.UserID+"|"+frame.ID) {
		h.logger.Debug("duplicate frame suppressed",
			"user_id", session.UserID,
			"frame_id", frame.ID)
		return
	}

	switch frame.Op {
	case opSend:
		if _, err := h.hub.SendMessage(ctx, session.UserID, frame.To, frame.Content); err != nil {
			if recoverable(err) {
				// Already reported to the caller as a system notice.
				return
			}
			h.logger.Error("send failed",
				"session_id", session.ID,
				"error", err)
		}
	case opHistory:
		if err := h.hub.LoadHistory(ctx, session.UserID, frame.To); err != nil {
			if recoverable(err) {
				return
			}
			h.logger.Error("history replay failed",
				"session_id", session.ID,
				"error", err)
		}
	default:
		session.Deliver(registry.Event{
			Type:    registry.EventSystem,
			Sender:  "System",
			Content: "Unknown operation.",
			SentAt:  time.Now().UTC(),
		})
	}
}

// recoverable reports whether the hub already delivered a system notice for
// this failure, so the transport has nothing left to do.
func recoverable(err error) bool {
	return errors.Is(err, hub.ErrRecipientNotFound) ||
		errors.Is(err, hub.ErrSelfMessage) ||
		errors.Is(err, store.ErrEmptyContent)
}

func toWire(evt registry.Event) WireEvent {
	wireType := eventReceiveMessage
	if evt.Type == registry.EventSystem {
		wireType = eventReceiveSystemNotice
	}
	return WireEvent{
		Type:    wireType,
		Sender:  evt.Sender,
		Content: evt.Content,
		SentAt:  evt.SentAt,
	}
}
