// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/chat/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite allows one writer at a time, and funneling all
	// access through one connection keeps append transactions serialized
	// instead of failing with SQLITE_BUSY under concurrent senders.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			pair_key TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_chats_pair_key
			ON chats(pair_key);

		CREATE INDEX IF NOT EXISTS idx_chats_user_a ON chats(user_a);
		CREATE INDEX IF NOT EXISTS idx_chats_user_b ON chats(user_b);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sent_at TEXT NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_sent
			ON messages(chat_id, sent_at, seq);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateUser inserts a user record mirrored from the identity subsystem.
// Returns ErrDuplicateUser if the email is already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, display_name, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "email", user.Email)
	return nil
}

// GetUser retrieves a user by stable identifier.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by external identifier (email).
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE email = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var createdAtStr string

	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// CreateChat inserts a new chat. The pair key is derived from the participant
// pair; if a chat for that pair already exists (including one created
// concurrently by the other side of a first contact), it returns
// ErrDuplicateChat.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *Chat) error {
	if chat.PairKey == "" {
		chat.PairKey = PairKey(chat.UserA, chat.UserB)
	}

	query := `
		INSERT INTO chats (id, user_a, user_b, pair_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		chat.ID,
		chat.UserA,
		chat.UserB,
		chat.PairKey,
		chat.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateChat
		}
		return fmt.Errorf("inserting chat: %w", err)
	}

	s.logger.Debug("created chat", "id", chat.ID, "pair_key", chat.PairKey)
	return nil
}

// GetChat retrieves a chat by identifier.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	query := `
		SELECT id, user_a, user_b, pair_key, created_at
		FROM chats
		WHERE id = ?
	`
	return s.scanChat(s.db.QueryRowContext(ctx, query, id))
}

// GetChatByPair retrieves the chat for an unordered participant pair.
// The argument order does not matter.
func (s *SQLiteStore) GetChatByPair(ctx context.Context, userA, userB string) (*Chat, error) {
	query := `
		SELECT id, user_a, user_b, pair_key, created_at
		FROM chats
		WHERE pair_key = ?
	`
	return s.scanChat(s.db.QueryRowContext(ctx, query, PairKey(userA, userB)))
}

func (s *SQLiteStore) scanChat(row *sql.Row) (*Chat, error) {
	var chat Chat
	var createdAtStr string

	err := row.Scan(&chat.ID, &chat.UserA, &chat.UserB, &chat.PairKey, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}

	chat.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &chat, nil
}

// ListChatsForUser returns all chats the user participates in, newest first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID string) ([]*Chat, error) {
	query := `
		SELECT id, user_a, user_b, pair_key, created_at
		FROM chats
		WHERE user_a = ? OR user_b = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var chat Chat
		var createdAtStr string
		if err := rows.Scan(&chat.ID, &chat.UserA, &chat.UserB, &chat.PairKey, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chat.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

// AppendMessage persists a message, assigning its ID, sequence number and send
// timestamp. The append runs in a transaction so that concurrent appends on
// the same chat serialize: the send timestamp is clamped to be non-decreasing
// within the chat and the sequence number breaks ties in insertion order.
// Content that is empty after trimming is rejected with ErrEmptyContent.
func (s *SQLiteStore) AppendMessage(ctx context.Context, chatID, senderID, receiverID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var lastSeq int64
	var lastSentStr sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0), MAX(sent_at)
		FROM messages
		WHERE chat_id = ?
	`, chatID).Scan(&lastSeq, &lastSentStr)
	if err != nil {
		return nil, fmt.Errorf("reading chat tail: %w", err)
	}

	sentAt := time.Now().UTC()
	if lastSentStr.Valid {
		lastSent, parseErr := time.Parse(time.RFC3339Nano, lastSentStr.String)
		if parseErr == nil && sentAt.Before(lastSent) {
			// Wall clock stepped backwards; keep per-chat ordering monotonic.
			sentAt = lastSent
		}
	}

	msg := &Message{
		ID:         uuid.New().String(),
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Seq:        lastSeq + 1,
		SentAt:     sentAt,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, receiver_id, content, seq, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ChatID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.Seq,
		msg.SentAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("message appended",
		"message_id", msg.ID,
		"chat_id", chatID,
		"seq", msg.Seq)
	return msg, nil
}

// ListMessages returns all messages for a chat, ascending by send timestamp
// with sequence number as a stable tie-break.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]*Message, error) {
	query := `
		SELECT id, chat_id, sender_id, receiver_id, content, seq, sent_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY sent_at ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var sentAtStr string
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Seq, &sentAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.SentAt, err = time.Parse(time.RFC3339Nano, sentAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
