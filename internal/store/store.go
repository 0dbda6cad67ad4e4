// Package store persists users, table membership, chat and hand history in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrUserNotFound  = errors.New("store: user not found")
	ErrUserExists    = errors.New("store: user already exists")
	ErrTableNotFound = errors.New("store: table not found")
	ErrTableExists   = errors.New("store: table already exists")
	ErrAlreadyJoined = errors.New("store: already at table")
)

// DefaultChips is the balance given to new accounts.
const DefaultChips = 5000

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_name     TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	chips         INTEGER NOT NULL DEFAULT 5000
);

CREATE TABLE IF NOT EXISTS tables (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
	owner_name TEXT NOT NULL,
	is_started INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS table_players (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name TEXT NOT NULL COLLATE NOCASE,
	user_name  TEXT NOT NULL COLLATE NOCASE,
	is_ready   INTEGER NOT NULL DEFAULT 0,
	UNIQUE(table_name, user_name)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name  TEXT NOT NULL COLLATE NOCASE,
	sender_name TEXT NOT NULL,
	text        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hand_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	hand_id      TEXT NOT NULL,
	user_name    TEXT NOT NULL COLLATE NOCASE,
	table_name   TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	hole_cards   TEXT NOT NULL,
	board_cards  TEXT NOT NULL,
	chips_before INTEGER NOT NULL,
	chips_after  INTEGER NOT NULL,
	net          INTEGER NOT NULL,
	result       TEXT NOT NULL,
	UNIQUE(hand_id, user_name)
);

CREATE INDEX IF NOT EXISTS idx_hand_history_user ON hand_history(user_name, id);
CREATE INDEX IF NOT EXISTS idx_chat_table ON chat_messages(table_name, id);
`

// Store is a SQLite-backed repository.
type Store struct {
	db     *sql.DB
	clock  quartz.Clock
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for timestamps.
func WithClock(c quartz.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string, logger *log.Logger, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, clock: quartz.NewReal(), logger: logger.WithPrefix("store")}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("Database ready", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
