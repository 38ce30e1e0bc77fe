package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

// PartitionRepository implements repository.PartitionRepository for SQLite.
// Archive partitions are per-month tables in the same database file, so the
// copy-verify-delete sequence runs inside one native transaction.
type PartitionRepository struct {
	db *DB
}

// NewPartitionRepository creates a new PartitionRepository
func NewPartitionRepository(db *DB) *PartitionRepository {
	return &PartitionRepository{db: db}
}

// EligibleMonths lists months strictly before the month of now that are
// still in the live table and contain no open sessions. A month with any
// open session is excluded entirely, even if calendar-old.
func (r *PartitionRepository) EligibleMonths(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT month FROM sessions
		WHERE month < ?
		GROUP BY month
		HAVING SUM(CASE WHEN ended_at IS NULL THEN 1 ELSE 0 END) = 0
		ORDER BY month ASC`,
		session.MonthKey(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, fmt.Errorf("failed to scan month: %w", err)
		}
		months = append(months, month)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating months: %w", err)
	}

	return months, nil
}

// ArchivedMonths lists months that already have an archive table.
func (r *PartitionRepository) ArchivedMonths(ctx context.Context) ([]string, error) {
	tables, err := r.db.listArchiveTables(ctx)
	if err != nil {
		return nil, err
	}
	months := make([]string, 0, len(tables))
	for _, table := range tables {
		months = append(months, monthFromTableName(table))
	}
	return months, nil
}

// ArchiveMonth moves one month's rows from the live table into its archive
// table: copy, verify the copied row count against the source, then delete,
// all in one transaction. Never delete-then-copy.
func (r *PartitionRepository) ArchiveMonth(ctx context.Context, month string) (int64, error) {
	table := archiveTableName(month)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("failed to begin archive transaction", err)
	}
	defer tx.Rollback()

	var open int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE month = ? AND ended_at IS NULL`,
		month).Scan(&open)
	if err != nil {
		return 0, unavailable("failed to count open sessions", err)
	}
	if open > 0 {
		return 0, fmt.Errorf("month %s has %d open sessions, archival deferred", month, open)
	}

	var live int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE month = ?`, month).Scan(&live)
	if err != nil {
		return 0, unavailable("failed to count live sessions", err)
	}
	if live == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(archiveTableDDL, table, table, table)); err != nil {
		return 0, unavailable("failed to create archive table", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO `+table+` (`+sessionColumns+`)
		SELECT `+sessionColumns+` FROM sessions WHERE month = ?`, month)
	if err != nil {
		return 0, unavailable("failed to copy sessions to archive", err)
	}
	copied, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// Recount the copied rows from the archive side before deleting anything.
	var verified int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM `+table+` a
		JOIN sessions s ON s.session_id = a.session_id AND s.month = ?`,
		month).Scan(&verified)
	if err != nil {
		return 0, unavailable("failed to verify archive copy", err)
	}
	if copied != live || verified != live {
		return 0, fmt.Errorf("archive of %s copied %d of %d rows (verified %d): %w",
			month, copied, live, verified, repository.ErrPartitionIntegrity)
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE month = ?`, month)
	if err != nil {
		return 0, unavailable("failed to delete archived sessions", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if deleted != live {
		return 0, fmt.Errorf("archive of %s deleted %d of %d rows: %w",
			month, deleted, live, repository.ErrPartitionIntegrity)
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("failed to commit archive transaction", err)
	}

	return live, nil
}

const archiveTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
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
CREATE INDEX IF NOT EXISTS idx_%s_started_at ON %s(started_at);
`
