package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazehub/sessiontrack/internal/domain/errorlog"
)

func TestErrorLogRepository_InsertList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewErrorLogRepository(db)

	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	sessionID := "s1"
	entries := []*errorlog.Entry{
		{Category: errorlog.CategoryFlushFailed, Message: "store locked", SessionID: &sessionID, OccurredAt: base},
		{Category: errorlog.CategoryArchiveFailed, Message: "copy failed", OccurredAt: base.Add(time.Minute)},
		{Category: errorlog.CategoryFlushFailed, Message: "timeout", OccurredAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		require.NoError(t, repo.Insert(ctx, entry))
		require.NotZero(t, entry.ID)
	}

	all, err := repo.List(ctx, errorlog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "timeout", all[0].Message, "newest first")

	flushOnly, err := repo.List(ctx, errorlog.ListOptions{Category: errorlog.CategoryFlushFailed})
	require.NoError(t, err)
	require.Len(t, flushOnly, 2)

	since, err := repo.List(ctx, errorlog.ListOptions{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, since, 1)

	limited, err := repo.List(ctx, errorlog.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	require.NotNil(t, all[2].SessionID)
	require.Equal(t, "s1", *all[2].SessionID)
	require.Nil(t, all[1].SessionID)
}

func TestErrorLogRepository_DeleteOlderThan(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewErrorLogRepository(db)

	base := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, &errorlog.Entry{
		Category: errorlog.CategoryFlushFailed, Message: "old", OccurredAt: base,
	}))
	require.NoError(t, repo.Insert(ctx, &errorlog.Entry{
		Category: errorlog.CategoryFlushFailed, Message: "new", OccurredAt: base.AddDate(0, 0, 10),
	}))

	removed, err := repo.DeleteOlderThan(ctx, base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	remaining, err := repo.List(ctx, errorlog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "new", remaining[0].Message)
}
