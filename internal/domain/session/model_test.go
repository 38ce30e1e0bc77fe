package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonthKey(t *testing.T) {
	require.Equal(t, "2025-07", MonthKey(time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC)))
	require.Equal(t, "2025-08", MonthKey(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))

	// Partition assignment is UTC regardless of the timestamp's zone.
	est := time.FixedZone("EST", -5*3600)
	require.Equal(t, "2025-08", MonthKey(time.Date(2025, 7, 31, 20, 0, 0, 0, est)))
}

func TestSessionDuration(t *testing.T) {
	started := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	sess := &Session{ID: "s1", StartedAt: started}

	require.True(t, sess.Open())
	require.Zero(t, sess.Duration())

	ended := started.Add(45 * time.Minute)
	sess.EndedAt = &ended
	require.False(t, sess.Open())
	require.Equal(t, 45*time.Minute, sess.Duration())
}

func TestSessionClone(t *testing.T) {
	started := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	ended := started.Add(time.Hour)
	orig := &Session{
		ID:             "s1",
		EndedAt:        &ended,
		EndpointsUsed:  map[string]int64{"/search": 2},
		ScreensVisited: []string{"home"},
	}

	clone := orig.Clone()
	clone.EndpointsUsed["/search"] = 99
	clone.ScreensVisited = append(clone.ScreensVisited, "extra")
	*clone.EndedAt = ended.Add(time.Hour)

	require.Equal(t, int64(2), orig.EndpointsUsed["/search"])
	require.Equal(t, []string{"home"}, orig.ScreensVisited)
	require.Equal(t, ended, *orig.EndedAt)
}
