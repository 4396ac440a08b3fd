// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so it builds without CGo. The
// driver registers itself with database/sql as "sqlite".
//
// CONSISTENCY MODEL:
// SQLite allows one writer at a time. The pool is pinned to a single
// connection, so every transaction runs alone and ":memory:" databases (one
// per connection) behave like a normal file database in tests. Multi-statement
// writes (recording a vote, creating a poll) always run inside a transaction,
// and the one-vote-per-user and one-achievement-per-title rules are enforced
// by UNIQUE/PRIMARY KEY constraints, not by read-then-write checks alone.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/pollquest/internal/repository"
)

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and provides repository methods.
//
// A DB returned by New talks to the pool directly. Inside WithinTx the callback
// receives a copy whose q is the open *sql.Tx.
type DB struct {
	conn *sql.DB
	q    querier
	tx   *sql.Tx
}

// compile-time check that *DB implements the full store
var _ repository.Store = (*DB)(nil)

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/pollquest.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []struct {
		stmt string
		desc string
	}{
		{"PRAGMA journal_mode=WAL", "setting WAL mode"},
		{"PRAGMA foreign_keys=ON", "enabling foreign keys"},
		{"PRAGMA busy_timeout=5000", "setting busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p.desc, err)
		}
	}

	db := &DB{conn: conn, q: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WithinTx runs fn inside a single transaction.
//
// If fn returns an error, panics, or ctx is cancelled before commit, the
// transaction is rolled back and none of its writes are visible. A DB that is
// already bound to a transaction runs fn in that same transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&DB{conn: db.conn, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// atomically is WithinTx for the repository methods themselves: a method that
// issues several statements wraps them here so it is atomic whether or not the
// caller already opened a transaction.
func (db *DB) atomically(ctx context.Context, fn func(tx *DB) error) error {
	return db.WithinTx(ctx, func(tx repository.Store) error {
		return fn(tx.(*DB))
	})
}

// migrate runs all database migrations.
// CREATE TABLE IF NOT EXISTS keeps them safe to re-run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                  TEXT PRIMARY KEY,
			username            TEXT NOT NULL,
			email               TEXT NOT NULL UNIQUE,
			password_hash       TEXT NOT NULL,
			xp                  INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
			total_polls_created INTEGER NOT NULL DEFAULT 0 CHECK (total_polls_created >= 0),
			total_votes_cast    INTEGER NOT NULL DEFAULT 0 CHECK (total_votes_cast >= 0),
			created_at          DATETIME NOT NULL,
			last_activity       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_xp ON users(xp DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS polls (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			creator_id       TEXT NOT NULL REFERENCES users(id),
			creator_username TEXT NOT NULL,
			total_votes      INTEGER NOT NULL DEFAULT 0 CHECK (total_votes >= 0),
			created_at       DATETIME NOT NULL,
			is_active        INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_polls_active_created ON polls(is_active, created_at);

		CREATE TABLE IF NOT EXISTS poll_options (
			poll_id  TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			id       TEXT NOT NULL,
			position INTEGER NOT NULL,
			text     TEXT NOT NULL,
			votes    INTEGER NOT NULL DEFAULT 0 CHECK (votes >= 0),
			PRIMARY KEY (poll_id, id)
		);

		CREATE TABLE IF NOT EXISTS poll_tags (
			poll_id  TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			tag      TEXT NOT NULL,
			PRIMARY KEY (poll_id, tag)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating poll tables: %w", err)
	}

	// One row per (poll, voter): the primary key is what makes a second vote
	// on the same poll impossible, whichever option it targets.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id   TEXT NOT NULL,
			user_id   TEXT NOT NULL REFERENCES users(id),
			option_id TEXT NOT NULL,
			voted_at  DATETIME NOT NULL,
			PRIMARY KEY (poll_id, user_id),
			FOREIGN KEY (poll_id, option_id) REFERENCES poll_options(poll_id, id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_poll_votes_option ON poll_votes(poll_id, option_id);
	`)
	if err != nil {
		return fmt.Errorf("creating poll_votes table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS achievements (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id),
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			badge_icon  TEXT NOT NULL,
			earned_at   DATETIME NOT NULL,
			xp_bonus    INTEGER NOT NULL DEFAULT 0,
			UNIQUE (user_id, title)
		);
		CREATE INDEX IF NOT EXISTS idx_achievements_user_earned ON achievements(user_id, earned_at);
	`)
	if err != nil {
		return fmt.Errorf("creating achievements table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedriver.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func isForeignKeyViolation(err error) bool {
	var se *sqlitedriver.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
