package errorlog

import "time"

// Category classifies a logged failure.
type Category string

const (
	CategoryFlushFailed      Category = "flush_failed"
	CategoryArchiveFailed    Category = "archive_failed"
	CategoryIntegrityFailure Category = "integrity_failure"
	CategoryRetentionFailed  Category = "retention_failed"
)

// Entry is one append-only record of a failure observed elsewhere in the
// system. Entries are only inserted and eventually pruned, never updated.
type Entry struct {
	ID         int64     `json:"id"`
	Category   Category  `json:"category"`
	Message    string    `json:"message"`
	SessionID  *string   `json:"session_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
