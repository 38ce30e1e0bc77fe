package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"sessions",
		"error_logs",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}
}

func TestActionsCountConstraint(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, started_at, month, actions_count)
		VALUES (?, ?, ?, ?, ?)`,
		"s1", "u1", 1000, "2025-07", -1)
	require.Error(t, err, "negative actions_count should violate the check constraint")
}

func TestArchiveTableNames(t *testing.T) {
	require.Equal(t, "sessions_2025_07", archiveTableName("2025-07"))
	require.Equal(t, "2025-07", monthFromTableName("sessions_2025_07"))
}

func TestListArchiveTables(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	tables, err := db.listArchiveTables(ctx)
	require.NoError(t, err)
	require.Empty(t, tables, "fresh database should have no archive tables")

	// Tables that merely share the prefix characters must not match; GLOB
	// treats the underscore literally where LIKE would not.
	for _, ddl := range []string{
		`CREATE TABLE sessions_2025_06 (session_id TEXT PRIMARY KEY)`,
		`CREATE TABLE sessions_2025_07 (session_id TEXT PRIMARY KEY)`,
		`CREATE TABLE sessionsXextra (session_id TEXT PRIMARY KEY)`,
	} {
		_, err := db.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}

	tables, err = db.listArchiveTables(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"sessions_2025_06", "sessions_2025_07"}, tables)
}
