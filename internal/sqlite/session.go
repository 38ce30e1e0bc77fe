package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

const sessionColumns = `session_id, user_id, platform, device_info, app_version,
		started_at, ended_at, month, actions_count, endpoints_used, screens_visited`

// SessionRepository implements repository.SessionRepository for SQLite
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// UpsertBatch writes every session in one transaction. started_at, month and
// the identity columns are immutable after the first insert; only the
// mutable progress columns are updated on conflict.
func (r *SessionRepository) UpsertBatch(ctx context.Context, sessions []*session.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin upsert transaction", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			actions_count = excluded.actions_count,
			endpoints_used = excluded.endpoints_used,
			screens_visited = excluded.screens_visited
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return unavailable("failed to prepare upsert", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		endpoints, screens, err := encodeSessionJSON(sess)
		if err != nil {
			return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
		}

		var endedAt any
		if sess.EndedAt != nil {
			endedAt = sess.EndedAt.UnixNano()
		}

		_, err = stmt.ExecContext(ctx,
			sess.ID,
			sess.UserID,
			sess.Platform,
			sess.DeviceInfo,
			sess.AppVersion,
			sess.StartedAt.UnixNano(),
			endedAt,
			session.MonthKey(sess.StartedAt),
			sess.ActionsCount,
			endpoints,
			screens,
		)
		if err != nil {
			return unavailable(fmt.Sprintf("failed to upsert session %s", sess.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit upsert transaction", err)
	}

	return nil
}

// Get retrieves a session by ID, checking the live table first and then any
// archive partitions.
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	tables := []string{"sessions"}
	archives, err := r.db.listArchiveTables(ctx)
	if err != nil {
		return nil, err
	}
	tables = append(tables, archives...)

	for _, table := range tables {
		query := `SELECT ` + sessionColumns + ` FROM ` + table + ` WHERE session_id = ?`
		sess, err := scanSession(r.db.QueryRowContext(ctx, query, id))
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		return sess, nil
	}

	return nil, repository.ErrNotFound
}

// Query returns sessions from the live table and every archive partition
// touched by the date range, ordered by started_at.
func (r *SessionRepository) Query(ctx context.Context, opts repository.QueryOptions) ([]session.Session, error) {
	tables, err := r.tablesForRange(ctx, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	where, args := sessionFilter(opts)
	parts := make([]string, 0, len(tables))
	var allArgs []any
	for _, table := range tables {
		parts = append(parts, `SELECT `+sessionColumns+` FROM `+table+where)
		allArgs = append(allArgs, args...)
	}

	query := strings.Join(parts, "\n		UNION ALL\n		") + `
		ORDER BY started_at ASC`
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1 // SQLite: no limit, offset still applies
		}
		query += ` LIMIT ? OFFSET ?`
		allArgs = append(allArgs, limit, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// ListOpenIDs returns the IDs of open sessions. Open sessions only ever live
// in the live table; archival skips any month containing one.
func (r *SessionRepository) ListOpenIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE ended_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session ids: %w", err)
	}

	return ids, nil
}

// DeleteOlderThan removes sessions started before the cutoff from the live
// table and all archives.
func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tables := []string{"sessions"}
	archives, err := r.db.listArchiveTables(ctx)
	if err != nil {
		return 0, err
	}
	tables = append(tables, archives...)

	var removed int64
	for _, table := range tables {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE started_at < ?`, cutoff.UnixNano())
		if err != nil {
			return removed, unavailable("failed to delete old sessions", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("failed to get rows affected: %w", err)
		}
		removed += n
	}

	return removed, nil
}

// tablesForRange returns the live table plus archive tables whose month
// overlaps [from, to]. Zero bounds are unbounded.
func (r *SessionRepository) tablesForRange(ctx context.Context, from, to time.Time) ([]string, error) {
	tables := []string{"sessions"}
	archives, err := r.db.listArchiveTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, table := range archives {
		month := monthFromTableName(table)
		if !from.IsZero() && month < session.MonthKey(from) {
			continue
		}
		if !to.IsZero() && month > session.MonthKey(to) {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func sessionFilter(opts repository.QueryOptions) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if !opts.From.IsZero() {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, opts.From.UnixNano())
	}
	if !opts.To.IsZero() {
		clauses = append(clauses, "started_at <= ?")
		args = append(args, opts.To.UnixNano())
	}
	if opts.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.Platform != "" {
		clauses = append(clauses, "platform = ?")
		args = append(args, opts.Platform)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess      session.Session
		startedAt int64
		endedAt   sql.NullInt64
		month     string
		endpoints string
		screens   string
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Platform,
		&sess.DeviceInfo,
		&sess.AppVersion,
		&startedAt,
		&endedAt,
		&month,
		&sess.ActionsCount,
		&endpoints,
		&screens,
	)
	if err != nil {
		return nil, err
	}

	sess.StartedAt = time.Unix(0, startedAt).UTC()
	if endedAt.Valid {
		t := time.Unix(0, endedAt.Int64).UTC()
		sess.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(endpoints), &sess.EndpointsUsed); err != nil {
		return nil, fmt.Errorf("decoding endpoints_used: %w", err)
	}
	if err := json.Unmarshal([]byte(screens), &sess.ScreensVisited); err != nil {
		return nil, fmt.Errorf("decoding screens_visited: %w", err)
	}

	return &sess, nil
}

func encodeSessionJSON(sess *session.Session) (endpoints, screens string, err error) {
	used := sess.EndpointsUsed
	if used == nil {
		used = map[string]int64{}
	}
	visited := sess.ScreensVisited
	if visited == nil {
		visited = []string{}
	}
	eb, err := json.Marshal(used)
	if err != nil {
		return "", "", err
	}
	sb, err := json.Marshal(visited)
	if err != nil {
		return "", "", err
	}
	return string(eb), string(sb), nil
}
