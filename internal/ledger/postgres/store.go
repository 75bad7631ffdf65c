// Package postgres stores the archive ledger in PostgreSQL.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Record(ctx, entry)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/soundboard/internal/ledger"
)

// Schema is the DDL for the archive ledger. [Migrate] applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS speech_archive (
    id            UUID         PRIMARY KEY,
    voice         TEXT         NOT NULL,
    voice_id      TEXT         NOT NULL DEFAULT '',
    message       TEXT         NOT NULL,
    archive_path  TEXT         NOT NULL,
    requested_by  TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_speech_archive_created_at
    ON speech_archive (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_speech_archive_voice
    ON speech_archive (voice);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ ledger.Recorder = (*Store)(nil)

// Store is a [ledger.Recorder] backed by PostgreSQL. It is safe for
// concurrent use.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// NewStore opens a connection pool to dsn, pings it, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{db: pool, pool: pool}, nil
}

// New wraps an existing connection or pool. The caller runs [Migrate] and
// owns closing db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate applies [Schema]. It is idempotent.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ledger postgres: migrate: %w", err)
	}
	return nil
}

// Record implements [ledger.Recorder]. A zero CreatedAt is stored as now.
func (s *Store) Record(ctx context.Context, e ledger.Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	const q = `
		INSERT INTO speech_archive (id, voice, voice_id, message, archive_path, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(ctx, q, e.ID, e.Voice, e.VoiceID, e.Message, e.ArchivePath, e.RequestedBy, createdAt)
	if err != nil {
		return fmt.Errorf("ledger postgres: record %s: %w", e.ID, err)
	}
	return nil
}

// Recent implements [ledger.Recorder]. A limit of zero or less means no
// limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	q := `
		SELECT id, voice, voice_id, message, archive_path, requested_by, created_at
		FROM speech_archive
		ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Entry, error) {
		var e ledger.Entry
		err := row.Scan(&e.ID, &e.Voice, &e.VoiceID, &e.Message, &e.ArchivePath, &e.RequestedBy, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: scan recent: %w", err)
	}
	return entries, nil
}

// Ping checks the pool. It reports nil for stores created with [New].
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool opened by [NewStore].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
