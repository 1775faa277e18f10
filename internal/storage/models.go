// Package storage persists conversation turn records in SQLite or Postgres.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// TurnRecord is one answered (or degraded) conversation turn.
type TurnRecord struct {
	ID            uuid.UUID `json:"id"`
	SessionID     string    `json:"session_id"`
	RequestID     string    `json:"request_id,omitempty"`
	Query         string    `json:"query"`
	Intent        string    `json:"intent"`
	Mode          string    `json:"mode"`
	City          string    `json:"city,omitempty"`
	Area          string    `json:"area,omitempty"`
	Vehicle       string    `json:"vehicle,omitempty"`
	ChunkIDs      []string  `json:"chunk_ids"`
	Rules         []string  `json:"rules"`
	AnswerLength  int       `json:"answer_length"`
	LatencyMs     int64     `json:"latency_ms"`
	Emergency     bool      `json:"emergency"`
	LowConfidence bool      `json:"low_confidence"`
	Degraded      bool      `json:"degraded"`
	OccurredAt    time.Time `json:"occurred_at"`
}
