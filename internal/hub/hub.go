// ABOUTME: Hub is the dispatch layer for direct messages between two users
// ABOUTME: Resolves identities and chats, persists messages, and fans out to live sessions

package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mentorconnect/chatd/internal/registry"
	"github.com/mentorconnect/chatd/internal/store"
)

// ErrRecipientNotFound indicates the receiver identity could not be resolved.
// The operation aborts before anything is persisted.
var ErrRecipientNotFound = errors.New("recipient not found")

// ErrSelfMessage indicates a user tried to message themselves.
var ErrSelfMessage = errors.New("sender and receiver are the same user")

// System notice texts delivered to the caller's own sessions.
const (
	noticeUserNotFound = "User not found."
	noticeNoChat       = "There is no chat with this user."
	noticeEmptyMessage = "Cannot send an empty message."
	noticeSelfMessage  = "You cannot send a message to yourself."
)

// UserResolver resolves an external identifier (email) or stable ID to a
// platform user. Absence is a first-class result, not an error: found is
// false when no such user exists, and err is reserved for lookup failures.
type UserResolver interface {
	ResolveUser(ctx context.Context, identifier string) (user *store.User, found bool, err error)
}

// MessageStore defines what the hub needs from persistence
type MessageStore interface {
	AppendMessage(ctx context.Context, chatID, senderID, receiverID, content string) (*store.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]*store.Message, error)
}

// ChatDirectory resolves unordered user pairs to their canonical chat
type ChatDirectory interface {
	ResolveOrCreate(ctx context.Context, userA, userB string) (*store.Chat, error)
	Resolve(ctx context.Context, userA, userB string) (*store.Chat, error)
}

// Hub orchestrates a send: resolve the receiver, resolve or create the chat,
// append the message, then fan out to every live session of both
// participants. Persistence is the source of truth; fan-out is best-effort
// and never rolls it back.
type Hub struct {
	store     MessageStore
	directory ChatDirectory
	registry  *registry.Registry
	resolver  UserResolver
	announcer *Announcer
	logger    *slog.Logger

	messagesSent      metric.Int64Counter
	deliveriesDropped metric.Int64Counter
	sessionsOpened    metric.Int64Counter
	sessionsClosed    metric.Int64Counter
}

// New creates a hub. Pass nil logger for default.
func New(messageStore MessageStore, dir ChatDirectory, reg *registry.Registry, resolver UserResolver, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("github.com/mentorconnect/chatd/internal/hub")
	messagesSent, _ := meter.Int64Counter("chatd.messages.sent",
		metric.WithDescription("Messages persisted and dispatched"))
	deliveriesDropped, _ := meter.Int64Counter("chatd.deliveries.dropped",
		metric.WithDescription("Fan-out deliveries dropped for closed or slow sessions"))
	sessionsOpened, _ := meter.Int64Counter("chatd.sessions.opened",
		metric.WithDescription("Live sessions opened"))
	sessionsClosed, _ := meter.Int64Counter("chatd.sessions.closed",
		metric.WithDescription("Live sessions closed"))

	return &Hub{
		store:             messageStore,
		directory:         dir,
		registry:          reg,
		resolver:          resolver,
		announcer:         NewAnnouncer(reg, logger),
		logger:            logger.With("component", "hub"),
		messagesSent:      messagesSent,
		deliveriesDropped: deliveriesDropped,
		sessionsOpened:    sessionsOpened,
		sessionsClosed:    sessionsClosed,
	}
}

// Announcer returns the presence announcer, which also serves as the
// broadcast-to-all primitive for collaborating services.
func (h *Hub) Announcer() *Announcer {
	return h.announcer
}

// Registry returns the session registry.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Connect registers a new live session for an authenticated user and
// announces the join to every registered session, the new one included.
func (h *Hub) Connect(userID string) *registry.Session {
	session := h.registry.Register(userID)
	h.sessionsOpened.Add(context.Background(), 1)
	h.announcer.AnnounceJoin(session.ID)
	return session
}

// Disconnect removes a session and announces the departure to every
// remaining session. Unknown session IDs are ignored.
func (h *Hub) Disconnect(sessionID string) {
	if _, ok := h.registry.UserOf(sessionID); !ok {
		return
	}
	h.registry.Unregister(sessionID)
	h.sessionsClosed.Add(context.Background(), 1)
	h.announcer.AnnounceLeave(sessionID)
}

// SendMessage dispatches one message from the sender to the receiver,
// identified by email or stable ID. The chat is created lazily on first
// contact. On success the message payload is delivered to every live session
// of the receiver AND of the sender, so the sender's other tabs and devices
// see their own outgoing message.
//
// Recoverable failures (unknown receiver, empty content) are reported to the
// caller's own sessions as system notices and returned as sentinel errors;
// they never affect other sessions and never roll back persisted state.
func (h *Hub) SendMessage(ctx context.Context, senderID, receiverIdentifier, content string) (*store.Message, error) {
	sender, found, err := h.resolver.ResolveUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("resolving sender: %w", err)
	}
	if !found {
		// The transport authenticated this user; a miss here means the
		// identity mirror is out of sync.
		return nil, fmt.Errorf("sender %q: %w", senderID, ErrRecipientNotFound)
	}

	receiver, found, err := h.resolver.ResolveUser(ctx, receiverIdentifier)
	if err != nil {
		return nil, fmt.Errorf("resolving receiver: %w", err)
	}
	if !found {
		h.notifyUser(sender.ID, noticeUserNotFound)
		return nil, ErrRecipientNotFound
	}

	if sender.ID == receiver.ID {
		h.notifyUser(sender.ID, noticeSelfMessage)
		return nil, ErrSelfMessage
	}

	chat, err := h.directory.ResolveOrCreate(ctx, sender.ID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving chat: %w", err)
	}

	msg, err := h.store.AppendMessage(ctx, chat.ID, sender.ID, receiver.ID, content)
	if err != nil {
		if errors.Is(err, store.ErrEmptyContent) {
			h.notifyUser(sender.ID, noticeEmptyMessage)
		}
		return nil, err
	}

	h.messagesSent.Add(ctx, 1)
	h.logger.Debug("message dispatched",
		"message_id", msg.ID,
		"chat_id", chat.ID,
		"sender", sender.ID,
		"receiver", receiver.ID)

	// The message is sent once persisted; delivery failures below are
	// drops, not errors.
	evt := registry.Event{
		Type:    registry.EventMessage,
		Sender:  sender.DisplayName,
		Content: msg.Content,
		SentAt:  msg.SentAt,
	}
	h.fanOut(receiver.ID, evt)
	h.fanOut(sender.ID, evt)

	return msg, nil
}

// LoadHistory replays the stored conversation between the requester and the
// other user, in send order, to the requester's own sessions only. If the
// pair has no chat yet, a single system notice is delivered instead and no
// chat is created.
func (h *Hub) LoadHistory(ctx context.Context, requesterID, otherIdentifier string) error {
	requester, found, err := h.resolver.ResolveUser(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("resolving requester: %w", err)
	}
	if !found {
		return fmt.Errorf("requester %q: %w", requesterID, ErrRecipientNotFound)
	}

	other, found, err := h.resolver.ResolveUser(ctx, otherIdentifier)
	if err != nil {
		return fmt.Errorf("resolving user: %w", err)
	}
	if !found {
		h.notifyUser(requester.ID, noticeUserNotFound)
		return ErrRecipientNotFound
	}

	chat, err := h.directory.Resolve(ctx, requester.ID, other.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.notifyUser(requester.ID, noticeNoChat)
			return nil
		}
		return fmt.Errorf("resolving chat: %w", err)
	}

	messages, err := h.store.ListMessages(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}

	names := map[string]string{
		requester.ID: requester.DisplayName,
		other.ID:     other.DisplayName,
	}
	for _, msg := range messages {
		h.fanOut(requester.ID, registry.Event{
			Type:    registry.EventMessage,
			Sender:  names[msg.SenderID],
			Content: msg.Content,
			SentAt:  msg.SentAt,
		})
	}

	h.logger.Debug("history replayed",
		"chat_id", chat.ID,
		"requester", requester.ID,
		"messages", len(messages))
	return nil
}

// fanOut delivers an event to every live session of a user. Sessions whose
// transport has dropped, or whose buffers are full, are skipped.
func (h *Hub) fanOut(userID string, evt registry.Event) {
	for _, session := range h.registry.SessionsOf(userID) {
		if !session.Deliver(evt) {
			h.deliveriesDropped.Add(context.Background(), 1)
			h.logger.Debug("dropped event for session",
				"session_id", session.ID,
				"user_id", userID)
		}
	}
}

// notifyUser delivers a system notice to the user's own sessions only.
func (h *Hub) notifyUser(userID, text string) {
	h.fanOut(userID, registry.Event{
		Type:    registry.EventSystem,
		Sender:  systemSender,
		Content: text,
		SentAt:  time.Now().UTC(),
	})
}
