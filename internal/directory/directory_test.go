// ABOUTME: Tests for the chat directory pair resolution
// ABOUTME: Covers symmetry, lazy creation, and concurrent first-contact races

package directory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorconnect/chatd/internal/store"
)

func newTestDirectory(t *testing.T) (*Directory, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

func TestResolveOrCreate_CreatesOnFirstContact(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	chat, err := d.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, store.PairKey("alice", "bob"), chat.PairKey)
	assert.True(t, chat.Involves("alice"))
	assert.True(t, chat.Involves("bob"))
}

func TestResolveOrCreate_Symmetric(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	forward, err := d.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	reverse, err := d.ResolveOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, forward.ID, reverse.ID, "reversed pair must resolve to the same chat")
}

func TestResolveOrCreate_IdempotentForSamePair(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	first, err := d.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	second, err := d.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveOrCreate_DistinctPairsGetDistinctChats(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	ab, err := d.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	ac, err := d.ResolveOrCreate(ctx, "alice", "carol")
	require.NoError(t, err)

	assert.NotEqual(t, ab.ID, ac.ID)
}

func TestResolveOrCreate_ConcurrentFirstContact(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	// Both users message each other at the same time, repeatedly, from both
	// argument orders. Every call must return the same chat ID.
	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if n%2 == 1 {
				a, b = b, a
			}
			chat, err := d.ResolveOrCreate(ctx, a, b)
			if err != nil {
				t.Errorf("caller %d: %v", n, err)
				return
			}
			ids[n] = chat.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i], "caller %d resolved a different chat", i)
	}
}

func TestResolveOrCreate_ConcurrentDistinctPairs(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	const pairs = 8
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", n)
			if _, err := d.ResolveOrCreate(ctx, user, "hub-user"); err != nil {
				t.Errorf("pair %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestResolve_DoesNotCreate(t *testing.T) {
	d, s := newTestDirectory(t)
	ctx := context.Background()

	_, err := d.Resolve(ctx, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Nothing was created by the failed resolve
	_, err = s.GetChatByPair(ctx, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGet_NotFound(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, err := d.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
