package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aieditor/backend/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewStore(Config{Now: clock.Now}), clock
}

func TestStore_Create(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("generates an id when none is given", func(t *testing.T) {
		sess, err := store.Create(ctx, "", "user1")
		require.NoError(t, err)
		require.NotEmpty(t, sess.ID)
		require.Equal(t, "user1", sess.UserID)
		require.Empty(t, sess.Messages)
		require.Equal(t, sess.CreatedAt, sess.LastActivity)
	})

	t.Run("existing id is idempotent", func(t *testing.T) {
		first, err := store.Create(ctx, "s1", "user1")
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, "s1", model.NewUserMessage("hello", nil))
		require.NoError(t, err)

		second, err := store.Create(ctx, "s1", "someone-else")
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "user1", second.UserID)
		require.Len(t, second.Messages, 1)
	})
}

func TestStore_GetDoesNotBumpActivity(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	got, err := store.Get("s1")
	require.NoError(t, err)
	require.Equal(t, created.LastActivity, got.LastActivity)

	_, err = store.Get("missing")
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestStore_AppendMessage(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	_, err := store.AppendMessage(ctx, "missing", model.NewUserMessage("x", nil))
	require.ErrorIs(t, err, model.ErrSessionNotFound)

	created, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	stamped, err := store.AppendMessage(ctx, "s1", model.NewUserMessage("hello", nil))
	require.NoError(t, err)
	require.Equal(t, "s1", stamped.SessionID)

	got, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "s1", got.Messages[0].SessionID)
	require.True(t, got.LastActivity.After(created.LastActivity))
	require.False(t, got.LastActivity.Before(got.CreatedAt))
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "s1", model.NewUserMessage("hello", map[string]any{"k": "v"}))
	require.NoError(t, err)

	snap, err := store.Get("s1")
	require.NoError(t, err)
	snap.Messages[0].Content = "tampered"
	snap.Messages[0].Metadata["k"] = "tampered"
	snap.Messages = append(snap.Messages, model.NewUserMessage("extra", nil))

	again, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, again.Messages, 1)
	require.Equal(t, "hello", again.Messages[0].Content)
	require.Equal(t, "v", again.Messages[0].Metadata["k"])
}

func TestStore_RecentMessages(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := store.AppendMessage(ctx, "s1", model.NewUserMessage(fmt.Sprintf("m%d", i), nil))
		require.NoError(t, err)
	}

	recent, err := store.RecentMessages("s1", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"m3", "m4"}, contents(recent))

	all, err := store.RecentMessages("s1", 10)
	require.NoError(t, err)
	require.Len(t, all, 5)

	for _, limit := range []int{0, -1} {
		full, err := store.RecentMessages("s1", limit)
		require.NoError(t, err)
		require.Len(t, full, 5, "limit %d returns the full log", limit)
	}

	_, err = store.RecentMessages("missing", 1)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestStore_DeleteCountAndList(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "a", "u1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = store.Create(ctx, "b", "u2")
	require.NoError(t, err)
	require.Equal(t, 2, store.Count())
	require.Equal(t, []string{"a", "b"}, ids(store.ListActive()))
	require.Equal(t, []string{"b"}, ids(store.ListByUser("u2")))

	require.True(t, store.Delete(ctx, "a"))
	require.False(t, store.Delete(ctx, "a"))
	require.Equal(t, 1, store.Count())
	require.Equal(t, []string{"b"}, ids(store.ListActive()))

	_, err = store.Get("a")
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestStore_ContextAndWorkspace(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, store.UpdateContext(ctx, "s1", "language", "go"))
	require.NoError(t, store.SetWorkspace(ctx, "s1", "/tmp/ws"))

	got, err := store.Get("s1")
	require.NoError(t, err)
	require.Equal(t, "go", got.Context["language"])
	require.Equal(t, "/tmp/ws", got.WorkspacePath)
	require.Equal(t, "/tmp/ws", got.ContextString(model.ContextKeyWorkspacePath))
	require.True(t, got.LastActivity.After(created.LastActivity))

	require.ErrorIs(t, store.UpdateContext(ctx, "missing", "k", "v"), model.ErrSessionNotFound)
}

func TestStore_ClearMessages(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "s1", model.NewUserMessage("hello", nil))
	require.NoError(t, err)

	require.NoError(t, store.ClearMessages(ctx, "s1"))
	n, err := store.MessageCount("s1")
	require.NoError(t, err)
	require.Zero(t, n)
	require.ErrorIs(t, store.ClearMessages(ctx, "missing"), model.ErrSessionNotFound)
}

func TestStore_Sweep(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "old", "")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = store.Create(ctx, "boundary", "")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = store.Create(ctx, "fresh", "")
	require.NoError(t, err)

	// old idle 2h, boundary idle exactly 1h, fresh idle 0.
	removed := store.Sweep(ctx, time.Hour)
	require.Equal(t, 1, removed)
	require.False(t, store.Exists("old"))
	require.True(t, store.Exists("boundary"))
	require.True(t, store.Exists("fresh"))
}

func TestStore_ConcurrentAppendsAreNotLost(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "s2", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = store.AppendMessage(ctx, "s1", model.NewUserMessage(fmt.Sprintf("a%d", i), nil))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = store.AppendMessage(ctx, "s2", model.NewUserMessage(fmt.Sprintf("b%d", i), nil))
		}(i)
	}
	wg.Wait()

	n1, err := store.MessageCount("s1")
	require.NoError(t, err)
	n2, err := store.MessageCount("s2")
	require.NoError(t, err)
	require.Equal(t, 50, n1)
	require.Equal(t, 50, n2)
}

func TestStore_LockSerializesSameSession(t *testing.T) {
	store, _ := setupTestStore(t)

	unlock := store.Lock("s1")

	acquired := make(chan struct{})
	go func() {
		release := store.Lock("s1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same session acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	// A different session is not blocked.
	other := make(chan struct{})
	go func() {
		release := store.Lock("s2")
		close(other)
		release()
	}()
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session was blocked")
	}

	unlock()
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func ids(sessions []*model.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
