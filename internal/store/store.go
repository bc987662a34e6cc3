// Package store persists the latest snapshot to SQLite under the data
// directory so a restart can serve last-known-good odds (marked stale) until
// the first live cycle completes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/courtside/linefeed/internal/feed"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    captured_at INTEGER NOT NULL,
    engine      TEXT    NOT NULL,
    duration_ms INTEGER NOT NULL,
    payload     BLOB    NOT NULL
);`

// payload is the JSON-serialised record content of a snapshot.
type payload struct {
	Live     []feed.Record `json:"live"`
	Upcoming []feed.Record `json:"upcoming"`
	Leagues  []feed.League `json:"leagues"`
}

// Store wraps the snapshot database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path with the
// production pragmas applied. The caller must blank-import a driver:
//
//	import _ "modernc.org/sqlite"
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns(1) keeps all
// queries on the same in-memory database; t.Cleanup closes it.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// SaveLatest upserts the snapshot; only one row ever exists.
func (s *Store) SaveLatest(ctx context.Context, snap *feed.Snapshot) error {
	body, err := json.Marshal(payload{Live: snap.Live, Upcoming: snap.Upcoming, Leagues: snap.Leagues})
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, captured_at, engine, duration_ms, payload)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    captured_at = excluded.captured_at,
		    engine      = excluded.engine,
		    duration_ms = excluded.duration_ms,
		    payload     = excluded.payload`,
		snap.CapturedAt.UnixMilli(), snap.Engine, snap.Duration.Milliseconds(), body)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// LoadLatest returns the persisted snapshot, or nil when none exists.
func (s *Store) LoadLatest(ctx context.Context) (*feed.Snapshot, error) {
	var (
		capturedAt int64
		engine     string
		durationMS int64
		body       []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT captured_at, engine, duration_ms, payload FROM snapshots WHERE id = 1`).
		Scan(&capturedAt, &engine, &durationMS, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}

	return &feed.Snapshot{
		Live:       p.Live,
		Upcoming:   p.Upcoming,
		Leagues:    p.Leagues,
		CapturedAt: time.UnixMilli(capturedAt),
		Engine:     engine,
		Duration:   time.Duration(durationMS) * time.Millisecond,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
