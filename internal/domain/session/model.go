package session

import "time"

// Session represents one continuous period of user activity.
type Session struct {
	ID             string           `json:"session_id"`
	UserID         string           `json:"user_id"`
	Platform       string           `json:"platform,omitempty"`
	DeviceInfo     string           `json:"device_info,omitempty"`
	AppVersion     string           `json:"app_version,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	ActionsCount   int64            `json:"actions_count"`
	EndpointsUsed  map[string]int64 `json:"endpoints_used"`
	ScreensVisited []string         `json:"screens_visited"`
}

// MonthKey returns the partition key for a timestamp, e.g. "2025-07".
// Partition assignment happens exactly once, from started_at in UTC, and is
// never revisited even if the session is mutated later.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// Duration returns the session length, or zero while the session is open.
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Clone returns a deep copy. The flush worker clones queued create payloads
// before applying updates so a requeued batch can be rematerialized from
// scratch on retry.
func (s *Session) Clone() *Session {
	out := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.EndpointsUsed = make(map[string]int64, len(s.EndpointsUsed))
	for k, v := range s.EndpointsUsed {
		out.EndpointsUsed[k] = v
	}
	out.ScreensVisited = append([]string(nil), s.ScreensVisited...)
	return &out
}

// MutationOp identifies the kind of a queued session mutation.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpClose  MutationOp = "close"
)

// Mutation is one queued change to a session. Mutations are applied in
// enqueue order; they are never deduplicated.
type Mutation struct {
	Op        MutationOp
	SessionID string

	// Session carries the full initial row for OpCreate.
	Session *Session

	// Endpoint and Screen describe an OpUpdate. Screen may be empty.
	Endpoint string
	Screen   string

	// At is the producer-side timestamp for OpUpdate and OpClose.
	At time.Time
}
