package repository

import (
	"context"
	"time"

	"github.com/hazehub/sessiontrack/internal/domain/session"
)

// SessionRepository manages session persistence across the live table and
// archived monthly partitions.
type SessionRepository interface {
	// UpsertBatch applies every session in one transaction. Either the whole
	// batch becomes durably visible or none of it does.
	UpsertBatch(ctx context.Context, sessions []*session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	// Query returns sessions merged from the live table and every archive
	// partition touched by the date range, ordered by started_at.
	Query(ctx context.Context, opts QueryOptions) ([]session.Session, error)
	// ListOpenIDs returns the IDs of sessions with no ended_at.
	ListOpenIDs(ctx context.Context) ([]string, error)
	// DeleteOlderThan removes sessions started before the cutoff from the
	// live table and all archives, returning the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// QueryOptions filters a session query. Zero time bounds are unbounded.
type QueryOptions struct {
	From     time.Time
	To       time.Time
	UserID   string
	Platform string
	Limit    int
	Offset   int
}

// PartitionRepository manages movement of closed months from the live table
// into per-month archive tables.
type PartitionRepository interface {
	// EligibleMonths lists months strictly before the month of now that are
	// still present in the live table and contain no open sessions.
	EligibleMonths(ctx context.Context, now time.Time) ([]string, error)
	// ArchiveMonth moves one month's rows into its archive table using
	// copy-verify-delete inside a single transaction. It returns the number
	// of rows moved, or ErrPartitionIntegrity if the copied row count does
	// not match the source (in which case nothing is deleted).
	ArchiveMonth(ctx context.Context, month string) (int64, error)
	// ArchivedMonths lists months that already have an archive table.
	ArchivedMonths(ctx context.Context) ([]string, error)
}
