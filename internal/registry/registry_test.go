// ABOUTME: Tests for the session registry
// ABOUTME: Covers register/unregister, multi-session users, delivery, and concurrency

package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_TracksSession(t *testing.T) {
	r := New(nil)
	defer r.Close()

	session := r.Register("alice")
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "alice", session.UserID)

	userID, ok := r.UserOf(session.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", userID)

	sessions := r.SessionsOf("alice")
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID, sessions[0].ID)
}

func TestRegister_MultipleSessionsPerUser(t *testing.T) {
	r := New(nil)
	defer r.Close()

	s1 := r.Register("alice")
	s2 := r.Register("alice")
	s3 := r.Register("bob")

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Len(t, r.SessionsOf("alice"), 2)
	assert.Len(t, r.SessionsOf("bob"), 1)
	assert.Equal(t, 3, r.Len())
	_ = s3
}

func TestUnregister_RemovesSession(t *testing.T) {
	r := New(nil)
	defer r.Close()

	s1 := r.Register("alice")
	s2 := r.Register("alice")

	r.Unregister(s1.ID)

	_, ok := r.UserOf(s1.ID)
	assert.False(t, ok, "unregistered session still resolvable")

	sessions := r.SessionsOf("alice")
	require.Len(t, sessions, 1)
	assert.Equal(t, s2.ID, sessions[0].ID)

	// Channel is closed so transport read loops terminate
	_, open := <-s1.Events()
	assert.False(t, open, "event channel still open after unregister")
}

func TestUnregister_UnknownSessionIsNoop(t *testing.T) {
	r := New(nil)
	defer r.Close()

	r.Register("alice")
	r.Unregister("nonexistent")
	assert.Equal(t, 1, r.Len())
}

func TestSessionsOf_EmptyForUnknownUser(t *testing.T) {
	r := New(nil)
	defer r.Close()

	assert.Empty(t, r.SessionsOf("nobody"))
}

func TestDeliver_ReceivesEvent(t *testing.T) {
	r := New(nil)
	defer r.Close()

	session := r.Register("alice")
	evt := Event{Type: EventMessage, Sender: "Bob", Content: "hi", SentAt: time.Now()}

	require.True(t, session.Deliver(evt))

	select {
	case got := <-session.Events():
		assert.Equal(t, "hi", got.Content)
		assert.Equal(t, "Bob", got.Sender)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDeliver_ClosedSessionIsNoop(t *testing.T) {
	r := New(nil)
	defer r.Close()

	session := r.Register("alice")
	r.Unregister(session.ID)

	assert.False(t, session.Deliver(Event{Type: EventSystem, Content: "notice"}))
}

func TestDeliver_FullBufferDropsEvent(t *testing.T) {
	r := New(nil)
	defer r.Close()

	session := r.Register("alice")
	for i := 0; ; i++ {
		if !session.Deliver(Event{Type: EventSystem, Content: fmt.Sprintf("n%d", i)}) {
			// Buffer filled; delivery reported failure without blocking
			assert.Greater(t, i, 0)
			return
		}
		if i > 10_000 {
			t.Fatal("delivery never reported a full buffer")
		}
	}
}

func TestAllSessions_Snapshot(t *testing.T) {
	r := New(nil)
	defer r.Close()

	r.Register("alice")
	r.Register("bob")
	r.Register("carol")

	assert.Len(t, r.AllSessions(), 3)
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := New(nil)
	defer r.Close()

	const users = 8
	const perUser = 20

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			for j := 0; j < perUser; j++ {
				session := r.Register(userID)
				session.Deliver(Event{Type: EventSystem, Content: "ping"})
				r.SessionsOf(userID)
				r.Unregister(session.ID)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len(), "sessions leaked after churn")
}

func TestRegistry_ReadYourWrites(t *testing.T) {
	r := New(nil)
	defer r.Close()

	// A session registered before the call must be reported; one unregistered
	// before the call must not be.
	s1 := r.Register("alice")
	s2 := r.Register("alice")
	r.Unregister(s2.ID)

	sessions := r.SessionsOf("alice")
	require.Len(t, sessions, 1)
	assert.Equal(t, s1.ID, sessions[0].ID)
}

func TestClose_ClosesAllSessions(t *testing.T) {
	r := New(nil)

	s1 := r.Register("alice")
	s2 := r.Register("bob")

	r.Close()

	for _, s := range []*Session{s1, s2} {
		_, open := <-s.Events()
		assert.False(t, open)
	}
	assert.Equal(t, 0, r.Len())
}
