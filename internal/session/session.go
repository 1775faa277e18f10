// Package session keeps per-conversation state: message history, the locked
// city/area/vehicle context and which booking links were already sent.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/cache"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Roles of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored turn half.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the persisted state of one conversation.
type Session struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Messages  []Message           `json:"messages"`
	Locked    contextlock.Context `json:"locked_context"`
	// LinksSent records the vehicle classes a booking link was sent for.
	LinksSent map[string]bool `json:"links_sent,omitempty"`
	// Answered is set once the session received a generated answer.
	Answered bool `json:"answered"`
}

// IsFirstMessage reports whether no user message has been stored yet.
func (s *Session) IsFirstMessage() bool {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return false
		}
	}
	return true
}

// Append stores a message.
func (s *Session) Append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, At: time.Now()})
}

// LastUserMessage returns the most recent user message, skipping the
// current one when skipLatest is set.
func (s *Session) LastUserMessage(skipLatest bool) string {
	skipped := !skipLatest
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role != RoleUser {
			continue
		}
		if !skipped {
			skipped = true
			continue
		}
		return s.Messages[i].Content
	}
	return ""
}

// Lock replaces the locked context.
func (s *Session) Lock(ctx contextlock.Context) {
	s.Locked = ctx
}

// LinkSent reports whether a booking link for class was already sent.
func (s *Session) LinkSent(class string) bool {
	return s.LinksSent[strings.ToUpper(class)]
}

// MarkLinkSent records that a booking link for class was sent.
func (s *Session) MarkLinkSent(class string) {
	if class == "" {
		return
	}
	if s.LinksSent == nil {
		s.LinksSent = make(map[string]bool)
	}
	s.LinksSent[strings.ToUpper(class)] = true
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	// Create starts a session with an optional seed context. An empty id
	// gets a fresh one.
	Create(ctx context.Context, id string, seed contextlock.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// StoreConfig holds session store settings.
type StoreConfig struct {
	TTL          time.Duration // 0 keeps sessions forever
	HistoryLimit int           // messages kept per session
}

// CacheStore stores sessions as JSON documents in a cache.Client.
type CacheStore struct {
	client cache.Client
	config StoreConfig
	logger *observability.Logger
}

// NewCacheStore creates a store on top of a memory or Redis client.
func NewCacheStore(client cache.Client, logger *observability.Logger, cfg StoreConfig) *CacheStore {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &CacheStore{
		client: client,
		config: cfg,
		logger: logger.WithComponent("session"),
	}
}

// Get loads a session.
func (s *CacheStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	data, err := s.client.Get(ctx, cache.SessionKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Create stores a new session.
func (s *CacheStore) Create(ctx context.Context, id string, seed contextlock.Context) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Locked:    seed,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("session_id", id).Msg("session created")
	return sess, nil
}

// Save writes the session back, trimming old messages.
func (s *CacheStore) Save(ctx context.Context, sess *Session) error {
	if n := len(sess.Messages); n > s.config.HistoryLimit {
		sess.Messages = append([]Message(nil), sess.Messages[n-s.config.HistoryLimit:]...)
	}
	sess.UpdatedAt = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, cache.SessionKey(sess.ID), data, s.config.TTL); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}
