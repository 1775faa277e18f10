// Package audit records every completed conversation turn.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/storage"
)

// Recorder persists turn records.
type Recorder interface {
	Record(ctx context.Context, turn *storage.TurnRecord) error
	Close() error
}

// New opens the recorder for cfg.Driver. Driver none (or empty) returns a
// recorder that only logs.
func New(ctx context.Context, cfg storage.Config, logger *observability.Logger) (Recorder, error) {
	logger = logger.WithComponent("audit")
	if cfg.Driver == "" || cfg.Driver == storage.DriverNone {
		return &LogRecorder{logger: logger}, nil
	}

	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("driver", cfg.Driver).Msg("audit store ready")

	return NewSQLRecorder(db, cfg.Driver, logger), nil
}

// LogRecorder writes turns to the structured log only.
type LogRecorder struct {
	logger *observability.Logger
}

// NewLogRecorder creates a log-only recorder.
func NewLogRecorder(logger *observability.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.WithComponent("audit")}
}

// Record logs the turn.
func (r *LogRecorder) Record(ctx context.Context, turn *storage.TurnRecord) error {
	logTurn(r.logger.WithContext(ctx), turn)
	return nil
}

// Close is a no-op.
func (r *LogRecorder) Close() error { return nil }

// SQLRecorder writes turns to SQLite or Postgres.
type SQLRecorder struct {
	db     *sql.DB
	repo   *storage.TurnRepository
	logger *observability.Logger
}

// NewSQLRecorder wraps an open database.
func NewSQLRecorder(db *sql.DB, driver string, logger *observability.Logger) *SQLRecorder {
	return &SQLRecorder{
		db:     db,
		repo:   storage.NewTurnRepository(db, driver),
		logger: logger,
	}
}

// Record logs and stores the turn.
func (r *SQLRecorder) Record(ctx context.Context, turn *storage.TurnRecord) error {
	if turn.OccurredAt.IsZero() {
		turn.OccurredAt = time.Now()
	}
	turn.OccurredAt = turn.OccurredAt.UTC()

	logTurn(r.logger.WithContext(ctx), turn)
	return r.repo.Create(ctx, turn)
}

// Turns exposes the repository for reporting.
func (r *SQLRecorder) Turns() *storage.TurnRepository {
	return r.repo
}

// Close closes the database.
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

func logTurn(logger *observability.Logger, turn *storage.TurnRecord) {
	logger.Debug().
		Str("session_id", turn.SessionID).
		Str("intent", turn.Intent).
		Str("mode", turn.Mode).
		Int("chunks", len(turn.ChunkIDs)).
		Bool("emergency", turn.Emergency).
		Bool("low_confidence", turn.LowConfidence).
		Bool("degraded", turn.Degraded).
		Msg("audit turn")
}
