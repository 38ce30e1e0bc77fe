// Package stats computes aggregate statistics from session rows. Aggregates
// are derived on demand from the store (live table plus archives) and cached
// behind a TTL; nothing here is ever written back.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazehub/sessiontrack/internal/cache"
	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

// Service answers aggregate queries over the session store.
type Service struct {
	repo   repository.SessionRepository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewService creates a new stats service. cache may be nil, in which case
// every call recomputes.
func NewService(repo repository.SessionRepository, c *cache.Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: c, logger: logger}
}

// GetSummary returns the range-wide rollup for [from, to].
func (s *Service) GetSummary(ctx context.Context, from, to time.Time) (*Summary, error) {
	key := "summary:" + rangeKey(from, to)
	value, err := s.cached(ctx, key, func(ctx context.Context) (any, error) {
		sessions, err := s.repo.Query(ctx, repository.QueryOptions{From: from, To: to})
		if err != nil {
			return nil, fmt.Errorf("querying sessions for summary: %w", err)
		}
		return summarize(sessions, from, to), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Summary), nil
}

// GetUserStats returns the lifetime aggregate for one user. It never fails
// for an unknown user; the zero-session stat is returned instead.
func (s *Service) GetUserStats(ctx context.Context, userID string) (*UserStat, error) {
	key := "user:" + userID
	value, err := s.cached(ctx, key, func(ctx context.Context) (any, error) {
		sessions, err := s.repo.Query(ctx, repository.QueryOptions{UserID: userID})
		if err != nil {
			return nil, fmt.Errorf("querying sessions for user %s: %w", userID, err)
		}
		return userStat(userID, sessions), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*UserStat), nil
}

// GetDailySeries returns per-day rollups for [from, to], ordered by date.
// Days without sessions are omitted, not zero-filled.
func (s *Service) GetDailySeries(ctx context.Context, from, to time.Time) ([]DailyStat, error) {
	key := "daily:" + rangeKey(from, to)
	value, err := s.cached(ctx, key, func(ctx context.Context) (any, error) {
		sessions, err := s.repo.Query(ctx, repository.QueryOptions{From: from, To: to})
		if err != nil {
			return nil, fmt.Errorf("querying sessions for daily series: %w", err)
		}
		return dailySeries(sessions), nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]DailyStat), nil
}

// Export returns every session in [from, to] ordered by start time, for bulk
// export.
func (s *Service) Export(ctx context.Context, from, to time.Time) ([]session.Session, error) {
	key := "export:" + rangeKey(from, to)
	value, err := s.cached(ctx, key, func(ctx context.Context) (any, error) {
		sessions, err := s.repo.Query(ctx, repository.QueryOptions{From: from, To: to})
		if err != nil {
			return nil, fmt.Errorf("querying sessions for export: %w", err)
		}
		return sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]session.Session), nil
}

func (s *Service) cached(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if s.cache == nil {
		return fn(ctx)
	}
	return s.cache.GetOrCompute(ctx, key, fn)
}

func rangeKey(from, to time.Time) string {
	f, t := "open", "open"
	if !from.IsZero() {
		f = from.UTC().Format(time.RFC3339)
	}
	if !to.IsZero() {
		t = to.UTC().Format(time.RFC3339)
	}
	return f + ".." + t
}

func summarize(sessions []session.Session, from, to time.Time) *Summary {
	out := &Summary{
		From:           from,
		To:             to,
		PlatformCounts: make(map[string]int),
	}

	// Activity windows trail back from the range's upper bound, or from the
	// latest session when the range is open-ended.
	ref := to
	if ref.IsZero() {
		for _, sess := range sessions {
			if sess.StartedAt.After(ref) {
				ref = sess.StartedAt
			}
		}
	}

	users := make(map[string]struct{})
	active7 := make(map[string]struct{})
	active30 := make(map[string]struct{})
	for _, sess := range sessions {
		out.TotalSessions++
		out.TotalActions += sess.ActionsCount
		users[sess.UserID] = struct{}{}
		if sess.Platform != "" {
			out.PlatformCounts[sess.Platform]++
		}
		if !ref.IsZero() {
			age := ref.Sub(sess.StartedAt)
			if age <= 7*24*time.Hour {
				active7[sess.UserID] = struct{}{}
			}
			if age <= 30*24*time.Hour {
				active30[sess.UserID] = struct{}{}
			}
		}
	}

	out.UniqueUsers = int64(len(users))
	out.ActiveUsers7d = int64(len(active7))
	out.ActiveUsers30d = int64(len(active30))
	return out
}

func userStat(userID string, sessions []session.Session) *UserStat {
	out := &UserStat{
		UserID:         userID,
		PlatformCounts: make(map[string]int),
		EndpointsUsed:  make(map[string]int64),
		DevicesUsed:    []string{},
	}

	var closed int64
	devices := make(map[string]struct{})
	for _, sess := range sessions {
		out.TotalSessions++
		out.TotalActions += sess.ActionsCount
		if out.FirstSeen.IsZero() || sess.StartedAt.Before(out.FirstSeen) {
			out.FirstSeen = sess.StartedAt
		}
		last := sess.StartedAt
		if sess.EndedAt != nil {
			last = *sess.EndedAt
		}
		if last.After(out.LastSeen) {
			out.LastSeen = last
		}
		if sess.EndedAt != nil {
			out.TotalDuration += sess.Duration()
			closed++
		}
		if sess.Platform != "" {
			out.PlatformCounts[sess.Platform]++
		}
		if sess.DeviceInfo != "" {
			devices[sess.DeviceInfo] = struct{}{}
		}
		for endpoint, n := range sess.EndpointsUsed {
			out.EndpointsUsed[endpoint] += n
		}
	}

	if closed > 0 {
		out.AvgDuration = out.TotalDuration / time.Duration(closed)
	}
	for device := range devices {
		out.DevicesUsed = append(out.DevicesUsed, device)
	}
	sort.Strings(out.DevicesUsed)
	return out
}

func dailySeries(sessions []session.Session) []DailyStat {
	type dayAcc struct {
		stat     DailyStat
		users    map[string]struct{}
		duration time.Duration
		closed   int64
	}

	days := make(map[string]*dayAcc)
	for _, sess := range sessions {
		date := sess.StartedAt.UTC().Format("2006-01-02")
		acc, ok := days[date]
		if !ok {
			acc = &dayAcc{
				stat:  DailyStat{Date: date, PlatformCounts: make(map[string]int)},
				users: make(map[string]struct{}),
			}
			days[date] = acc
		}
		acc.stat.Sessions++
		acc.stat.TotalActions += sess.ActionsCount
		acc.users[sess.UserID] = struct{}{}
		if sess.Platform != "" {
			acc.stat.PlatformCounts[sess.Platform]++
		}
		if sess.EndedAt != nil {
			acc.duration += sess.Duration()
			acc.closed++
		}
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	out := make([]DailyStat, 0, len(dates))
	for _, date := range dates {
		acc := days[date]
		acc.stat.UniqueUsers = int64(len(acc.users))
		if acc.closed > 0 {
			acc.stat.AvgDuration = acc.duration / time.Duration(acc.closed)
		}
		out = append(out, acc.stat)
	}
	return out
}
