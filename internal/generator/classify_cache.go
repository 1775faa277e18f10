package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/cache"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

// ClassifyCacheConfig configures the classification cache.
type ClassifyCacheConfig struct {
	// TTL of one entry. Zero disables the cache.
	TTL       time.Duration
	KeyPrefix string
}

// ClassifyCache stores knowledge/chat decisions so repeated questions skip
// the classification call. Only successful classifications are stored.
type ClassifyCache struct {
	client cache.Client
	logger *observability.Logger
	config ClassifyCacheConfig
}

// NewClassifyCache creates a cache on top of client.
func NewClassifyCache(client cache.Client, logger *observability.Logger, cfg ClassifyCacheConfig) *ClassifyCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "classify"
	}
	return &ClassifyCache{
		client: client,
		logger: logger.WithComponent("classify_cache"),
		config: cfg,
	}
}

func (c *ClassifyCache) enabled() bool {
	return c != nil && c.client != nil && c.config.TTL > 0
}

// Key hashes the model and the normalized question.
func (c *ClassifyCache) Key(model, question string) string {
	sum := sha256.Sum256([]byte(model + "|" + textutil.Normalize(question)))
	return cache.Key(c.config.KeyPrefix, hex.EncodeToString(sum[:16]))
}

// Get returns a cached mode.
func (c *ClassifyCache) Get(ctx context.Context, model, question string) (Mode, bool) {
	if !c.enabled() {
		return "", false
	}

	key := c.Key(model, question)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("classify cache get failed")
		}
		return "", false
	}

	switch mode := Mode(data); mode {
	case ModeKnowledge, ModeChat:
		c.logger.Debug().Str("key", key).Str("mode", string(mode)).Msg("classify cache hit")
		return mode, true
	default:
		return "", false
	}
}

// Set stores a mode.
func (c *ClassifyCache) Set(ctx context.Context, model, question string, mode Mode) error {
	if !c.enabled() {
		return nil
	}

	key := c.Key(model, question)
	if err := c.client.Set(ctx, key, []byte(mode), c.config.TTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache classification")
		return err
	}
	return nil
}
