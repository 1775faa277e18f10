package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/cache"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

func TestClassify_Cached(t *testing.T) {
	client := cache.NewMemoryClient(0)
	defer client.Close()

	fc := &fakeCompleter{replies: []*Message{{Content: "chat"}, {Content: "knowledge"}}}
	g := newTestGenerator(fc, 12)
	g.SetClassifyCache(NewClassifyCache(client, observability.NopLogger(), ClassifyCacheConfig{TTL: time.Hour}))
	ctx := context.Background()

	assert.Equal(t, ModeChat, g.Classify(ctx, "Berätta ett skämt"))
	// Same question modulo case and punctuation.
	assert.Equal(t, ModeChat, g.Classify(ctx, "berätta ett SKÄMT!"))
	assert.Len(t, fc.requests, 1)

	assert.Equal(t, ModeKnowledge, g.Classify(ctx, "Vad är riskettan?"))
	assert.Len(t, fc.requests, 2)
}

func TestClassify_FailureNotCached(t *testing.T) {
	client := cache.NewMemoryClient(0)
	defer client.Close()

	fc := &fakeCompleter{err: errors.New("timeout")}
	g := newTestGenerator(fc, 12)
	g.SetClassifyCache(NewClassifyCache(client, observability.NopLogger(), ClassifyCacheConfig{TTL: time.Hour}))
	ctx := context.Background()

	assert.Equal(t, ModeKnowledge, g.Classify(ctx, "hej"))

	fc.err = nil
	fc.replies = []*Message{{Content: "chat"}}
	assert.Equal(t, ModeChat, g.Classify(ctx, "hej"))
	assert.Len(t, fc.requests, 2)
}

func TestClassifyCache_Disabled(t *testing.T) {
	client := cache.NewMemoryClient(0)
	defer client.Close()
	ctx := context.Background()

	var nilCache *ClassifyCache
	_, ok := nilCache.Get(ctx, "m", "q")
	assert.False(t, ok)
	assert.NoError(t, nilCache.Set(ctx, "m", "q", ModeChat))

	off := NewClassifyCache(client, observability.NopLogger(), ClassifyCacheConfig{})
	require.NoError(t, off.Set(ctx, "m", "q", ModeChat))
	_, ok = off.Get(ctx, "m", "q")
	assert.False(t, ok)
}

func TestClassifyCache_KeyAndGarbage(t *testing.T) {
	client := cache.NewMemoryClient(0)
	defer client.Close()
	ctx := context.Background()
	c := NewClassifyCache(client, observability.NopLogger(), ClassifyCacheConfig{TTL: time.Minute})

	assert.Equal(t, c.Key("gpt-4o-mini", "Hej!"), c.Key("gpt-4o-mini", "hej"))
	assert.NotEqual(t, c.Key("gpt-4o-mini", "hej"), c.Key("gpt-4o", "hej"))
	assert.Contains(t, c.Key("m", "q"), "classify:")

	require.NoError(t, client.Set(ctx, c.Key("m", "q"), []byte("bogus"), time.Minute))
	_, ok := c.Get(ctx, "m", "q")
	assert.False(t, ok)
}
