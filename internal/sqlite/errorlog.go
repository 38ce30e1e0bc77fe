package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazehub/sessiontrack/internal/domain/errorlog"
)

// ErrorLogRepository implements errorlog.Repository for SQLite
type ErrorLogRepository struct {
	db *DB
}

// NewErrorLogRepository creates a new ErrorLogRepository
func NewErrorLogRepository(db *DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

// Insert appends an error log entry and fills in its assigned ID.
func (r *ErrorLogRepository) Insert(ctx context.Context, entry *errorlog.Entry) error {
	var sessionID any
	if entry.SessionID != nil {
		sessionID = *entry.SessionID
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO error_logs (category, message, session_id, occurred_at)
		VALUES (?, ?, ?, ?)`,
		entry.Category, entry.Message, sessionID, entry.OccurredAt.UnixNano())
	if err != nil {
		return unavailable("failed to insert error log entry", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}
	entry.ID = id

	return nil
}

// List returns error log entries, newest first.
func (r *ErrorLogRepository) List(ctx context.Context, opts errorlog.ListOptions) ([]errorlog.Entry, error) {
	query := `
		SELECT id, category, message, session_id, occurred_at
		FROM error_logs WHERE 1=1`
	var args []any
	if opts.Category != "" {
		query += ` AND category = ?`
		args = append(args, opts.Category)
	}
	if !opts.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, opts.Since.UnixNano())
	}
	query += ` ORDER BY occurred_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var entries []errorlog.Entry
	for rows.Next() {
		var (
			entry      errorlog.Entry
			sessionID  sql.NullString
			occurredAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.Category, &entry.Message, &sessionID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan error log entry: %w", err)
		}
		if sessionID.Valid {
			entry.SessionID = &sessionID.String
		}
		entry.OccurredAt = time.Unix(0, occurredAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error logs: %w", err)
	}

	return entries, nil
}

// DeleteOlderThan prunes error log entries older than the cutoff.
func (r *ErrorLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM error_logs WHERE occurred_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, unavailable("failed to delete old error logs", err)
	}
	return result.RowsAffected()
}
