package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema holds the drive tables. drive_meta has exactly one row, id = 1,
// carrying the revision of the stored snapshot.
const Schema = `
CREATE TABLE IF NOT EXISTS drive_meta (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	revision BIGINT NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS drive_entities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	media_type TEXT,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	parent_id TEXT,
	owner_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL,
	last_opened_at TIMESTAMPTZ,
	starred BOOLEAN NOT NULL DEFAULT FALSE,
	shared BOOLEAN NOT NULL DEFAULT FALSE,
	trashed_at TIMESTAMPTZ,
	trashed_with TEXT
);
CREATE INDEX IF NOT EXISTS idx_drive_entities_parent ON drive_entities(parent_id);
CREATE INDEX IF NOT EXISTS idx_drive_entities_trashed ON drive_entities(trashed_at) WHERE trashed_at IS NOT NULL;`

// EnsureSchema creates the drive tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
