package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TurnRepository handles turn record operations.
type TurnRepository struct {
	db     DB
	driver string
}

// NewTurnRepository creates a turn repository. driver selects the
// placeholder style: postgres uses $n, everything else ?.
func NewTurnRepository(db DB, driver string) *TurnRepository {
	return &TurnRepository{db: db, driver: driver}
}

// Create inserts a turn record.
func (r *TurnRepository) Create(ctx context.Context, rec *TurnRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	chunkIDs, err := json.Marshal(nonNil(rec.ChunkIDs))
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	rules, err := json.Marshal(nonNil(rec.Rules))
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	query := `
		INSERT INTO turns (id, session_id, request_id, query, intent, mode, city, area, vehicle,
			chunk_ids, rules, answer_length, latency_ms, emergency, low_confidence, degraded, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID.String(), rec.SessionID, rec.RequestID, rec.Query, rec.Intent, rec.Mode,
		rec.City, rec.Area, rec.Vehicle, string(chunkIDs), string(rules), rec.AnswerLength,
		rec.LatencyMs, rec.Emergency, rec.LowConfidence, rec.Degraded, rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// GetByID retrieves a turn by id.
func (r *TurnRepository) GetByID(ctx context.Context, id uuid.UUID) (*TurnRecord, error) {
	query := selectTurns + ` WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), id.String())
	if err != nil {
		return nil, err
	}
	recs, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// ListBySession returns a session's turns, oldest first.
func (r *TurnRepository) ListBySession(ctx context.Context, sessionID string) ([]*TurnRecord, error) {
	query := selectTurns + ` WHERE session_id = ? ORDER BY occurred_at ASC`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), sessionID)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

// Recent returns the latest turns, newest first.
func (r *TurnRepository) Recent(ctx context.Context, limit int) ([]*TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectTurns + ` ORDER BY occurred_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

// Count returns the number of stored turns.
func (r *TurnRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

const selectTurns = `
	SELECT id, session_id, request_id, query, intent, mode, city, area, vehicle,
		chunk_ids, rules, answer_length, latency_ms, emergency, low_confidence, degraded, occurred_at
	FROM turns`

func scanTurns(rows *sql.Rows) ([]*TurnRecord, error) {
	defer rows.Close()

	var out []*TurnRecord
	for rows.Next() {
		rec := &TurnRecord{}
		var id, chunkIDs, rules string
		if err := rows.Scan(
			&id, &rec.SessionID, &rec.RequestID, &rec.Query, &rec.Intent, &rec.Mode,
			&rec.City, &rec.Area, &rec.Vehicle, &chunkIDs, &rules, &rec.AnswerLength,
			&rec.LatencyMs, &rec.Emergency, &rec.LowConfidence, &rec.Degraded, &rec.OccurredAt,
		); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse turn id %q: %w", id, err)
		}
		rec.ID = parsed
		if err := json.Unmarshal([]byte(chunkIDs), &rec.ChunkIDs); err != nil {
			return nil, fmt.Errorf("decode chunk ids: %w", err)
		}
		if err := json.Unmarshal([]byte(rules), &rec.Rules); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *TurnRepository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
