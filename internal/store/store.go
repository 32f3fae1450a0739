// ABOUTME: Store interface and data types for chatd persistence
// ABOUTME: Defines User, Chat, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateChat is returned when trying to create a chat whose participant
// pair already has one. Callers resolve this by re-reading the winner; it is
// never surfaced to users.
var ErrDuplicateChat = errors.New("chat already exists")

// ErrDuplicateUser is returned when trying to create a user whose email is taken
var ErrDuplicateUser = errors.New("user already exists")

// ErrEmptyContent is returned when appending a message whose content is empty
// after trimming whitespace
var ErrEmptyContent = errors.New("message content is empty")

// User mirrors the identity subsystem's view of a platform user.
// The messaging core only reads ID and DisplayName; it never mutates users.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Chat is the single canonical conversation between an unordered pair of users.
// PairKey is the order-independent encoding of the two participant IDs and is
// unique at the storage layer.
type Chat struct {
	ID        string
	UserA     string
	UserB     string
	PairKey   string
	CreatedAt time.Time
}

// Involves reports whether userID is one of the chat's two participants.
func (c *Chat) Involves(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Message is a single message within a chat. SentAt is assigned by the store
// at append time and is non-decreasing within a chat; Seq breaks ties in
// insertion order.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	Seq        int64
	SentAt     time.Time
}

// PairKey returns the canonical, order-independent key for two user IDs.
// PairKey(a, b) == PairKey(b, a) for all a, b.
func PairKey(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

// Store defines the persistence operations used by the messaging core.
type Store interface {
	// Users (read-mostly mirror of the identity subsystem)
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Chats
	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	GetChatByPair(ctx context.Context, userA, userB string) (*Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]*Chat, error)

	// Messages
	AppendMessage(ctx context.Context, chatID, senderID, receiverID, content string) (*Message, error)
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)

	Close() error
}
