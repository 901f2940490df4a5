// Package sqlite implements a history.Sink backed by a pure-Go SQLite
// driver, for single-node deployments with no external database. The
// schema is managed as a versioned migration list tracked in the
// database's user_version pragma, so future columns can be added without
// wiping an existing event log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/fbaster/mcsupervisor/internal/history"
)

// migrations is applied in order; user_version records how many have run.
// Never edit an entry in place — append a new one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS lifecycle_events(
		occurred_at TIMESTAMP NOT NULL,
		nick TEXT NOT NULL,
		kind TEXT NOT NULL,
		desired INTEGER NOT NULL,
		observed_online INTEGER NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS lifecycle_events_nick_occurred
		ON lifecycle_events(nick, occurred_at)`,
}

const insertSQL = `INSERT INTO lifecycle_events
	(occurred_at, nick, kind, desired, observed_online, detail)
	VALUES (?, ?, ?, ?, ?, ?)`

// Sink writes lifecycle events to a SQLite database.
type Sink struct {
	db     *sql.DB
	insert *sql.Stmt
}

// New creates a SQLite history sink. Accepted DSNs: a bare filesystem
// path, ":memory:", or either prefixed with "sqlite://".
func New(dsn string) (*Sink, error) {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "sqlite://")
	if path == "" {
		return nil, errors.New("sqlite history: empty DSN")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite history: open %s: %w", path, err)
	}
	// A single writer is enough for an event log, and keeping it at one
	// sidesteps SQLITE_BUSY between concurrent supervisor callers.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite history: migrate: %w", err)
	}

	insert, err := db.Prepare(insertSQL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite history: prepare insert: %w", err)
	}

	return &Sink{db: db, insert: insert}, nil
}

// migrate brings the schema up to len(migrations), recording progress in
// user_version so a partially-migrated database resumes where it left off.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	for ; version < len(migrations); version++ {
		if _, err := db.Exec(migrations[version]); err != nil {
			return fmt.Errorf("step %d: %w", version+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version+1)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.insert.ExecContext(ctx,
		e.OccurredAt.UTC(), e.Nick, string(e.Kind), e.Desired, e.ObservedOnline, e.Detail)
	if err != nil {
		return fmt.Errorf("sqlite history: insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.insert != nil {
		_ = s.insert.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
