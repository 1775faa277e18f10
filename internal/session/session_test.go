package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/cache"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

func newTestStore(t *testing.T, cfg StoreConfig) *CacheStore {
	t.Helper()
	client := cache.NewMemoryClient(0)
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheStore(client, observability.NopLogger(), cfg)
}

func TestCacheStore_CreateGetSave(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{})

	sess, err := store.Create(ctx, "", contextlock.Context{City: "Göteborg"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.True(t, sess.IsFirstMessage())

	sess.Append(RoleUser, "vad kostar körlektion?")
	sess.Append(RoleAssistant, "695 kr")
	sess.Lock(contextlock.Context{City: "Göteborg", Area: "Ullevi", Vehicle: "BIL"})
	sess.MarkLinkSent("bil")
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.IsFirstMessage())
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "Ullevi", got.Locked.Area)
	assert.True(t, got.LinkSent("BIL"))
	assert.False(t, got.LinkSent("MC"))
}

func TestCacheStore_CreateWithID(t *testing.T) {
	store := newTestStore(t, StoreConfig{})

	sess, err := store.Create(context.Background(), "client-chosen", contextlock.Context{})
	require.NoError(t, err)
	assert.Equal(t, "client-chosen", sess.ID)
}

func TestCacheStore_NotFound(t *testing.T) {
	store := newTestStore(t, StoreConfig{})

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{TTL: 30 * time.Millisecond})

	sess, err := store.Create(ctx, "", contextlock.Context{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, sess.ID)
		return errors.Is(err, ErrNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestCacheStore_HistoryLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{HistoryLimit: 3})

	sess, err := store.Create(ctx, "", contextlock.Context{})
	require.NoError(t, err)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		sess.Append(RoleUser, m)
	}
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "c", got.Messages[0].Content)
}

func TestSession_LastUserMessage(t *testing.T) {
	s := &Session{}
	assert.Empty(t, s.LastUserMessage(false))

	s.Append(RoleUser, "vad kostar det?")
	s.Append(RoleAssistant, "i vilken stad?")
	s.Append(RoleUser, "göteborg")

	assert.Equal(t, "göteborg", s.LastUserMessage(false))
	assert.Equal(t, "vad kostar det?", s.LastUserMessage(true))
}

func TestLocker_SerializesSameID(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "sess")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.Len())
}

func TestLocker_IndependentIDs(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestLocker_ContextCancel(t *testing.T) {
	l := NewLocker()

	unlock, err := l.Lock(context.Background(), "sess")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "sess")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, l.Len())
}
