package stats

import "time"

// UserStat is the per-user aggregate over a set of sessions. Derived values
// only; never persisted.
type UserStat struct {
	UserID         string           `json:"user_id"`
	TotalSessions  int64            `json:"total_sessions"`
	TotalActions   int64            `json:"total_actions"`
	FirstSeen      time.Time        `json:"first_seen"`
	LastSeen       time.Time        `json:"last_seen"`
	TotalDuration  time.Duration    `json:"total_duration"`
	AvgDuration    time.Duration    `json:"avg_duration"`
	DevicesUsed    []string         `json:"devices_used"`
	PlatformCounts map[string]int   `json:"platform_counts"`
	EndpointsUsed  map[string]int64 `json:"endpoints_used"`
}

// DailyStat is one day's activity rollup.
type DailyStat struct {
	Date           string         `json:"date"` // "2006-01-02", UTC
	Sessions       int64          `json:"sessions"`
	UniqueUsers    int64          `json:"unique_users"`
	TotalActions   int64          `json:"total_actions"`
	AvgDuration    time.Duration  `json:"avg_duration"`
	PlatformCounts map[string]int `json:"platform_counts"`
}

// Summary is the range-wide rollup.
type Summary struct {
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	TotalSessions  int64          `json:"total_sessions"`
	UniqueUsers    int64          `json:"unique_users"`
	TotalActions   int64          `json:"total_actions"`
	PlatformCounts map[string]int `json:"platform_counts"`

	// Trailing activity windows, measured back from the upper range bound.
	ActiveUsers7d  int64 `json:"active_users_7d"`
	ActiveUsers30d int64 `json:"active_users_30d"`
}
