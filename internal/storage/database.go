package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string
}

// Open connects to the configured database, pings it and applies the schema.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	var driver string
	switch cfg.Driver {
	case DriverSQLite:
		driver = "sqlite3"
	case DriverPostgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 1
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Driver == DriverSQLite && cfg.JournalMode != "" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+cfg.JournalMode); err != nil {
			db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}

	if err := Migrate(ctx, db, cfg.Driver); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the turns table and its indexes if missing.
func Migrate(ctx context.Context, db DB, driver string) error {
	tsType := "TIMESTAMP"
	if driver == DriverPostgres {
		tsType = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			area TEXT NOT NULL DEFAULT '',
			vehicle TEXT NOT NULL DEFAULT '',
			chunk_ids TEXT NOT NULL DEFAULT '[]',
			rules TEXT NOT NULL DEFAULT '[]',
			answer_length INTEGER NOT NULL DEFAULT 0,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			emergency BOOLEAN NOT NULL DEFAULT FALSE,
			low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			occurred_at ` + tsType + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns (session_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_occurred ON turns (occurred_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
