package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The flush worker is the sole batch writer, but readers run
	// concurrently with it; WAL keeps them from blocking each other.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. Timestamps are stored as unix
// nanoseconds so range comparisons and ordering never depend on a text
// date format, and counts survive round-trips with no precision loss.
func (db *DB) RunMigrations() error {
	migration := `
-- Live sessions table. Holds the current month plus any prior months that
-- have not been archived yet.
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL DEFAULT '',
    device_info TEXT NOT NULL DEFAULT '',
    app_version TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    month TEXT NOT NULL,
    actions_count INTEGER NOT NULL DEFAULT 0 CHECK(actions_count >= 0),
    endpoints_used TEXT NOT NULL DEFAULT '{}',
    screens_visited TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_platform ON sessions(platform);
CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);
CREATE INDEX IF NOT EXISTS idx_sessions_month ON sessions(month);

-- Append-only failure log.
CREATE TABLE IF NOT EXISTS error_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    category TEXT NOT NULL,
    message TEXT NOT NULL,
    session_id TEXT,
    occurred_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_logs_occurred_at ON error_logs(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_error_logs_category ON error_logs(category);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

const archiveTablePrefix = "sessions_"

func archiveTableName(month string) string {
	return archiveTablePrefix + strings.ReplaceAll(month, "-", "_")
}

func monthFromTableName(table string) string {
	return strings.ReplaceAll(strings.TrimPrefix(table, archiveTablePrefix), "_", "-")
}

// listArchiveTables returns existing archive table names sorted by month.
func (db *DB) listArchiveTables(ctx context.Context) ([]string, error) {
	// GLOB treats the underscore literally; LIKE would not.
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name GLOB ?`,
		archiveTablePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list archive tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	sort.Strings(tables)
	return tables, nil
}
