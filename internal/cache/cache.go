// Package cache provides the key-value backends used for session state.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss indicates the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the key-value interface shared by the memory and Redis backends.
// A zero ttl stores the value without expiry.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Key joins key components with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// SessionKey returns the storage key of a conversation session.
func SessionKey(sessionID string) string {
	return Key("session", sessionID)
}
