// ABOUTME: Integration tests for the websocket transport
// ABOUTME: Dials a real server and exercises send, history, and dedupe flows

package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorconnect/chatd/internal/auth"
	"github.com/mentorconnect/chatd/internal/dedupe"
	"github.com/mentorconnect/chatd/internal/directory"
	"github.com/mentorconnect/chatd/internal/hub"
	"github.com/mentorconnect/chatd/internal/identity"
	"github.com/mentorconnect/chatd/internal/registry"
	"github.com/mentorconnect/chatd/internal/store"
	"github.com/mentorconnect/chatd/internal/transport"
)

type wsFixture struct {
	srv      *httptest.Server
	store    *store.SQLiteStore
	verifier *auth.JWTVerifier
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(nil)
	t.Cleanup(reg.Close)

	frames := dedupe.New(time.Minute, 1024)
	t.Cleanup(frames.Close)

	h := hub.New(st, directory.New(st, nil), reg, identity.New(st, nil), nil)

	verifier, err := auth.NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/ws", auth.Middleware(st, verifier)(transport.NewHandler(h, frames, nil)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &wsFixture{srv: srv, store: st, verifier: verifier}
}

func (f *wsFixture) createUser(t *testing.T, email, name string) *store.User {
	t.Helper()
	user := &store.User{ID: uuid.New().String(), Email: email, DisplayName: name}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

// dial connects an authenticated websocket client for the user.
func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	token, err := f.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) transport.WireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var evt transport.WireEvent
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	return evt
}

// awaitMessage reads events until a chat message arrives, skipping presence
// and other system notices along the way.
func awaitMessage(t *testing.T, conn *websocket.Conn) transport.WireEvent {
	t.Helper()
	for i := 0; i < 10; i++ {
		evt := readEvent(t, conn)
		if evt.Type == "receiveMessage" {
			return evt
		}
	}
	t.Fatal("no chat message received")
	return transport.WireEvent{}
}

// awaitNotice reads events until a system notice containing the substring
// arrives.
func awaitNotice(t *testing.T, conn *websocket.Conn, contains string) transport.WireEvent {
	t.Helper()
	for i := 0; i < 10; i++ {
		evt := readEvent(t, conn)
		if evt.Type == "receiveSystemNotice" && strings.Contains(evt.Content, contains) {
			return evt
		}
	}
	t.Fatalf("no system notice containing %q received", contains)
	return transport.WireEvent{}
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame transport.Frame) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, frame))
}

func TestConnect_AnnouncesJoin(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")

	conn := f.dial(t, alice.ID)

	evt := awaitNotice(t, conn, "joined the chat")
	assert.Equal(t, "receiveSystemNotice", evt.Type)
	assert.Equal(t, "System", evt.Sender)
}

func TestSend_DeliversToBothSides(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	bob := f.createUser(t, "bob@example.com", "Bob")

	aliceConn := f.dial(t, alice.ID)
	bobConn := f.dial(t, bob.ID)

	sendFrame(t, aliceConn, transport.Frame{Op: "send", To: "bob@example.com", Content: "hi bob"})

	got := awaitMessage(t, bobConn)
	assert.Equal(t, "Alice", got.Sender)
	assert.Equal(t, "hi bob", got.Content)

	// The sender's own sessions see the outgoing message too.
	echo := awaitMessage(t, aliceConn)
	assert.Equal(t, "Alice", echo.Sender)
	assert.Equal(t, "hi bob", echo.Content)
}

func TestSend_DuplicateFrameSuppressed(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	bob := f.createUser(t, "bob@example.com", "Bob")

	aliceConn := f.dial(t, alice.ID)
	bobConn := f.dial(t, bob.ID)

	frame := transport.Frame{Op: "send", ID: "frame-1", To: "bob@example.com", Content: "once"}
	sendFrame(t, aliceConn, frame)
	sendFrame(t, aliceConn, frame)

	got := awaitMessage(t, bobConn)
	assert.Equal(t, "once", got.Content)

	// The retry must not produce a second stored message.
	require.Eventually(t, func() bool {
		chat, err := f.store.GetChatByPair(context.Background(), alice.ID, bob.ID)
		if err != nil {
			return false
		}
		msgs, err := f.store.ListMessages(context.Background(), chat.ID)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 50*time.Millisecond)
}

func TestSend_UnknownReceiverNotifiesCaller(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")

	conn := f.dial(t, alice.ID)

	sendFrame(t, conn, transport.Frame{Op: "send", To: "nobody@example.com", Content: "hello?"})

	evt := awaitNotice(t, conn, "User not found.")
	assert.Equal(t, "System", evt.Sender)
}

func TestHistory_ReplaysToRequesterOnly(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	bob := f.createUser(t, "bob@example.com", "Bob")

	aliceConn := f.dial(t, alice.ID)
	bobConn := f.dial(t, bob.ID)

	sendFrame(t, aliceConn, transport.Frame{Op: "send", To: "bob@example.com", Content: "first"})
	awaitMessage(t, aliceConn)
	awaitMessage(t, bobConn)

	sendFrame(t, bobConn, transport.Frame{Op: "send", To: "alice@example.com", Content: "second"})
	awaitMessage(t, aliceConn)
	awaitMessage(t, bobConn)

	// A fresh session for Alice replays the conversation in send order.
	replayConn := f.dial(t, alice.ID)
	sendFrame(t, replayConn, transport.Frame{Op: "history", To: "bob@example.com"})

	first := awaitMessage(t, replayConn)
	assert.Equal(t, "Alice", first.Sender)
	assert.Equal(t, "first", first.Content)

	second := awaitMessage(t, replayConn)
	assert.Equal(t, "Bob", second.Sender)
	assert.Equal(t, "second", second.Content)
}

func TestHistory_NoChatNotifiesCaller(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")
	f.createUser(t, "bob@example.com", "Bob")

	conn := f.dial(t, alice.ID)
	sendFrame(t, conn, transport.Frame{Op: "history", To: "bob@example.com"})

	awaitNotice(t, conn, "There is no chat with this user.")
}

func TestUnknownOp_NotifiesCaller(t *testing.T) {
	f := newWSFixture(t)
	alice := f.createUser(t, "alice@example.com", "Alice")

	conn := f.dial(t, alice.ID)
	sendFrame(t, conn, transport.Frame{Op: "shout", Content: "hello"})

	awaitNotice(t, conn, "Unknown operation.")
}

func TestDial_RejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
