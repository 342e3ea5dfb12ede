package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists documents and the backup log in Postgres, for wards that
// share one registry across several workstations.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS documents (
		key        TEXT PRIMARY KEY,
		data       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS backups (
		timestamp BIGINT PRIMARY KEY,
		username  TEXT NOT NULL,
		data      BYTEA NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create backups table: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE key = $1`, key).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load document %q: %w", key, err)
	}
	return data, true, nil
}

func (s *PGStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (key, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, data)
	if err != nil {
		return fmt.Errorf("save document %q: %w", key, err)
	}
	return nil
}

func (s *PGStore) Append(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO backups (timestamp, username, data) VALUES ($1, $2, $3)`,
		e.Timestamp, e.User, e.Data)
	if err != nil {
		return fmt.Errorf("append backup %d: %w", e.Timestamp, err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT timestamp, username, data FROM backups`)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Timestamp, &e.User, &e.Data); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, timestamp int64) (Entry, bool, error) {
	var e Entry
	err := s.pool.QueryRow(ctx,
		`SELECT timestamp, username, data FROM backups WHERE timestamp = $1`, timestamp).
		Scan(&e.Timestamp, &e.User, &e.Data)
	if err == pgx.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get backup %d: %w", timestamp, err)
	}
	return e, true, nil
}

func (s *PGStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM backups`); err != nil {
		return fmt.Errorf("clear backups: %w", err)
	}
	return nil
}
