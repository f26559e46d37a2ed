// Package transcript archives conversation ledger entries to SQLite.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
//
// The archive is write-only from the agent's point of view; the in-memory
// ledger stays authoritative and bounded.
package transcript

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/normanking/pixie/internal/ledger"
)

//go:embed migrations/001_transcript.sql
var transcriptSchema string

// Store writes ledger entries for one agent session.
type Store struct {
	db      *sql.DB
	session string
	insert  *sql.Stmt
}

// Open opens (creating if needed) the database at path and starts a new
// session for petName.
func Open(path, petName string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, session: uuid.NewString()}
	if err := s.init(petName); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(petName string) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(transcriptSchema); err != nil {
		return fmt.Errorf("migration 001_transcript: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO sessions (id, pet_name, started_at) VALUES (?, ?, ?)`,
		s.session, petName, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	insert, err := s.db.Prepare(`INSERT INTO entries (id, session_id, speaker, text, at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	s.insert = insert
	return nil
}

// Session returns this run's session ID.
func (s *Store) Session() string { return s.session }

// Record archives one entry. It implements ledger.Sink.
func (s *Store) Record(e ledger.Entry) error {
	if _, err := s.insert.Exec(e.ID, s.session, e.Speaker, e.Text, e.At.UTC()); err != nil {
		return fmt.Errorf("record entry %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries of the current session, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, speaker, text, at FROM entries
		WHERE session_id = ?
		ORDER BY rowid DESC
		LIMIT ?`, s.session, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.Speaker, &e.Text, &e.At); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Count returns the number of entries archived across all sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
