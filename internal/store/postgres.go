package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Postgres stores entries in a shared table, namespaced by a key prefix so
// several clients can share one database.
type Postgres struct {
	db     *sql.DB
	prefix string
}

func NewPostgres(ctx context.Context, db *sql.DB, prefix string) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &Postgres{db: db, prefix: prefix}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS session_kv (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure session_kv schema: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var value []byte
	const q = `SELECT value FROM session_kv WHERE key = $1`
	if err := s.db.QueryRowContext(ctx, q, s.prefix+key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query session entry: %w", err)
	}
	return value, true, nil
}

func (s *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	value, err := compactValue(value)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO session_kv (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
	updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, q, s.prefix+key, value); err != nil {
		return fmt.Errorf("upsert session entry: %w", err)
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE key = $1`, s.prefix+key); err != nil {
		return fmt.Errorf("delete session entry: %w", err)
	}
	return nil
}
