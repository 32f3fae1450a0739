// ABOUTME: Chat directory mapping unordered user pairs to their single canonical chat
// ABOUTME: Lazily creates chats and reconciles concurrent first-contact creation races

package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mentorconnect/chatd/internal/store"
)

// ChatStore defines what the directory needs from storage
type ChatStore interface {
	CreateChat(ctx context.Context, chat *store.Chat) error
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	GetChatByPair(ctx context.Context, userA, userB string) (*store.Chat, error)
}

// Directory resolves an unordered pair of user IDs to exactly one chat.
// Symmetry is guaranteed by the canonical pair key: (A,B) and (B,A) always
// resolve to the same record, including under concurrent first-contact sends
// from both directions.
type Directory struct {
	store  ChatStore
	logger *slog.Logger
}

// New creates a chat directory. Pass nil logger for default.
func New(chatStore ChatStore, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  chatStore,
		logger: logger.With("component", "directory"),
	}
}

// ResolveOrCreate returns the chat for the pair (userA, userB), creating it if
// none exists. Creation races against the other side of a first contact are
// resolved by the storage-level pair-key constraint: on a duplicate error the
// winning row is re-read and returned, so callers never observe the conflict.
func (d *Directory) ResolveOrCreate(ctx context.Context, userA, userB string) (*store.Chat, error) {
	chat, err := d.store.GetChatByPair(ctx, userA, userB)
	if err == nil {
		return chat, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("looking up chat: %w", err)
	}

	// Participants are stored in caller order; the pair key makes lookup
	// order-independent.
	chat = &store.Chat{
		ID:        uuid.New().String(),
		UserA:     userA,
		UserB:     userB,
		PairKey:   store.PairKey(userA, userB),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.CreateChat(ctx, chat); err != nil {
		if err == store.ErrDuplicateChat {
			d.logger.Debug("chat creation hit duplicate, retrying lookup",
				"pair_key", chat.PairKey)
			existing, lookupErr := d.store.GetChatByPair(ctx, userA, userB)
			if lookupErr == nil {
				d.logger.Debug("found existing chat after race", "chat_id", existing.ID)
				return existing, nil
			}
			return nil, fmt.Errorf("retry lookup after duplicate: %w", lookupErr)
		}
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	d.logger.Debug("chat created",
		"chat_id", chat.ID,
		"pair_key", chat.PairKey)
	return chat, nil
}

// Resolve returns the chat for the pair without creating one.
// Returns store.ErrNotFound if the pair has never exchanged messages.
func (d *Directory) Resolve(ctx context.Context, userA, userB string) (*store.Chat, error) {
	return d.store.GetChatByPair(ctx, userA, userB)
}

// Get returns a chat by identifier. Returns store.ErrNotFound if absent.
func (d *Directory) Get(ctx context.Context, chatID string) (*store.Chat, error) {
	return d.store.GetChat(ctx, chatID)
}
