// Package store wraps the embedded single-writer analytical database
// that backs the mailroom core. It hands out independent read
// connections for concurrent queries and exposes a single serialized
// write path; the only caller of the write path is expected to be
// internal/writequeue, never request handlers directly.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/bpsong/mailroom/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion gates the PRAGMA user_version migrations in
// migrations.go. Bump it whenever a new migrateToVN is added.
const currentSchemaVersion = 1

// ErrConflict signals a transient, retryable failure on the write path
// (a busy/locked SQLite error). ErrFatal signals a failure WriteQueue
// must not retry.
var (
	ErrConflict = errors.New("store: conflict, retry")
	ErrFatal    = errors.New("store: fatal write error")
)

// Store owns exactly one write connection and an unbounded pool of read
// connections over the same database file.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	path    string
	lock    *os.File
}

// ReadHandle is an independent connection for a single caller's query.
// Callers must call Close when done; it returns the connection to the
// shared read pool rather than closing a socket/file each time.
type ReadHandle struct {
	conn *sql.Conn
}

func (h *ReadHandle) Close() error { return h.conn.Close() }

func (h *ReadHandle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.conn.QueryContext(ctx, query, args...)
}

func (h *ReadHandle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return h.conn.QueryRowContext(ctx, query, args...)
}

// Open creates or opens the database at path, applies pragmas, creates
// the schema if absent, runs migrations, and sweeps expired sessions.
// It is idempotent: safe to call once at process startup.
//
// Open first takes an exclusive, non-blocking flock on a path+".lock"
// sidecar file (spec.md 4.1: "Store refuses to open if another process
// holds the database file"). The lock is held for the Store's lifetime
// and released by Close; a second process calling Open against the same
// path fails immediately instead of racing SQLite's own file locking.
func Open(path string) (*Store, error) {
	lock, err := acquireExclusiveLock(path + ".lock")
	if err != nil {
		return nil, err
	}

	writeDB, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	if err := writeDB.Ping(); err != nil {
		writeDB.Close()
		lock.Close()
		return nil, fmt.Errorf("connect write connection: %w", err)
	}

	if err := applyPragmas(writeDB); err != nil {
		writeDB.Close()
		lock.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := writeDB.Exec(schemaSQL); err != nil {
		writeDB.Close()
		lock.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := runMigrations(writeDB); err != nil {
		writeDB.Close()
		lock.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite3", path+"?mode=ro&_query_only=true")
	if err != nil {
		writeDB.Close()
		lock.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	if err := applyReadPragmas(readDB); err != nil {
		writeDB.Close()
		readDB.Close()
		lock.Close()
		return nil, fmt.Errorf("apply read pragmas: %w", err)
	}

	s := &Store{writeDB: writeDB, readDB: readDB, path: path, lock: lock}

	if n, err := s.sweepExpiredSessions(context.Background()); err != nil {
		logger.Store().Warn().Err(err).Msg("startup session sweep failed")
	} else if n > 0 {
		logger.Store().Info().Int("deleted", n).Msg("swept expired sessions at startup")
	}

	return s, nil
}

// acquireExclusiveLock takes a non-blocking exclusive flock on lockPath,
// creating it if absent. It returns an error immediately (EWOULDBLOCK)
// rather than waiting if another process already holds the lock.
func acquireExclusiveLock(lockPath string) (*os.File, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("database already open by another process: %s", lockPath)
		}
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}
	return f, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%q: %w", p, err)
		}
	}
	return nil
}

func applyReadPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%q: %w", p, err)
		}
	}
	return nil
}

// Path returns the database file's path, for callers that need to stat
// the filesystem it lives on (health checks) rather than query it.
func (s *Store) Path() string { return s.path }

// OpenRead hands out an independent read connection. Safe to call
// concurrently from many goroutines; never blocks on the writer.
func (s *Store) OpenRead(ctx context.Context) (*ReadHandle, error) {
	conn, err := s.readDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire read connection: %w", err)
	}
	return &ReadHandle{conn: conn}, nil
}

// ApplyWrite executes a single statement on the sole write connection.
// It classifies SQLite busy/locked errors as ErrConflict (retryable)
// and everything else as ErrFatal.
func (s *Store) ApplyWrite(ctx context.Context, stmt string, args ...any) error {
	_, err := s.writeDB.ExecContext(ctx, stmt, args...)
	return classify(err)
}

// Statement is one statement of an atomic ApplyBatch group.
type Statement struct {
	SQL  string
	Args []any
}

// ApplyBatch executes every statement in a single transaction: all
// succeed or none are applied.
func (s *Store) ApplyBatch(ctx context.Context, stmts []Statement) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.SQL, st.Args...); err != nil {
			tx.Rollback()
			return classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Checkpoint flushes the write-ahead log into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.writeDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return classify(err)
}

// Close closes the write and read connection pools and releases
// the exclusive process lock acquired by Open.
func (s *Store) Close() error {
	var firstErr error
	if err := s.writeDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Store) sweepExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// classify turns a raw database/sql error into ErrConflict, ErrFatal,
// or nil/non-AppError passthrough (for sql.ErrNoRows, which callers
// handle themselves).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ErrConflict
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return ErrConflict
	}
	return fmt.Errorf("%w: %v", ErrFatal, err)
}
