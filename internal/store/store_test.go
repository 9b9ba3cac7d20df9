package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	h, err := s.OpenRead(context.Background())
	require.NoError(t, err)
	defer h.Close()

	var count int
	err = h.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM users").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoErrorf(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_RefusesWhenAlreadyHeldByAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := Open(path)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(path)
	require.Error(t, err, "a second Open against the same path must fail while the first is still held")
}

func TestOpen_SucceedsAfterPriorHolderCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()
}

func TestApplyWrite_And_OpenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	err = s.ApplyWrite(ctx,
		`INSERT INTO users (id, username, password_hash, full_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		"u1", "alice", "hash", "Alice", "operator")
	require.NoError(t, err)

	h, err := s.OpenRead(ctx)
	require.NoError(t, err)
	defer h.Close()

	var username string
	err = h.QueryRowContext(ctx, "SELECT username FROM users WHERE id = ?", "u1").Scan(&username)
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestApplyBatch_AllOrNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	stmts := []Statement{
		{SQL: `INSERT INTO users (id, username, password_hash, full_name, role, created_at, updated_at)
		        VALUES (?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
			Args: []any{"u2", "bob", "hash", "Bob", "operator"}},
		{SQL: `INSERT INTO users (id, username, password_hash, full_name, role, created_at, updated_at)
		        VALUES (?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
			Args: []any{"u3", "bob", "hash", "Bob Duplicate", "operator"}}, // unique violation
	}
	err = s.ApplyBatch(ctx, stmts)
	require.Error(t, err)

	h, err := s.OpenRead(ctx)
	require.NoError(t, err)
	defer h.Close()

	var count int
	err = h.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id IN (?, ?)", "u2", "u3").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count, "batch must not apply partially")
}

func TestMigration_BackfillsUnassignedDepartment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Simulate a pre-migration database: a NULL-department row, with
	// user_version rolled back so the next Open treats it as unmigrated.
	err = s.ApplyWrite(ctx,
		`INSERT INTO recipients (id, employee_id, name, email, department, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, 1, datetime('now'), datetime('now'))`,
		"r1", "E100", "Carol", "carol@example.com")
	require.NoError(t, err)
	err = s.ApplyWrite(ctx, "PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening sees user_version = 0 and re-runs migrateToV1.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	h, err := s2.OpenRead(ctx)
	require.NoError(t, err)
	defer h.Close()

	var dept string
	err = h.QueryRowContext(ctx, "SELECT department FROM recipients WHERE id = ?", "r1").Scan(&dept)
	require.NoError(t, err)
	require.Equal(t, "Unassigned", dept)
}

func TestCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Checkpoint(context.Background()))
}
