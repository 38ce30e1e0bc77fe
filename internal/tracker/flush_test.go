package tracker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
	"github.com/hazehub/sessiontrack/internal/repository/mocks"
)

func newMockedTracker(t *testing.T, store *mocks.SessionRepository) (*Tracker, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)).MustWait(context.Background())
	return New(Options{
		Store:  store,
		Clock:  clock,
		Logger: slog.Default(),
	}), clock
}

func TestForceFlush_EmptyQueue(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, _ := newMockedTracker(t, store)

	n, err := tr.ForceFlush(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	store.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestForceFlush_FailureRequeuesBatch(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, _ := newMockedTracker(t, store)
	ctx := context.Background()

	id := tr.StartSession("u1", "ios", "", "")
	require.NoError(t, tr.RecordAction(id, "/search", ""))
	require.Equal(t, 2, tr.Queue().Len())

	store.On("UpsertBatch", mock.Anything, mock.Anything).
		Return(errors.New("disk I/O error")).Once()

	_, err := tr.ForceFlush(ctx)
	require.Error(t, err)
	require.Equal(t, 2, tr.Queue().Len(), "failed batch must return to the queue")

	// The retry rebuilds the same final state; the earlier failed attempt
	// must not have leaked partial application into it.
	store.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(sessions []*session.Session) bool {
		return len(sessions) == 1 &&
			sessions[0].ID == id &&
			sessions[0].ActionsCount == 1 &&
			sessions[0].EndpointsUsed["/search"] == 1
	})).Return(nil).Once()

	n, err := tr.ForceFlush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 0, tr.Queue().Len())
	store.AssertExpectations(t)
}

func TestForceFlush_RequeuePreservesOrderAcrossNewMutations(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, _ := newMockedTracker(t, store)
	ctx := context.Background()

	id := tr.StartSession("u1", "ios", "", "")

	store.On("UpsertBatch", mock.Anything, mock.Anything).
		Return(errors.New("database is locked")).Once()
	_, err := tr.ForceFlush(ctx)
	require.Error(t, err)

	// Mutations enqueued after the failure sort behind the requeued batch, so
	// the create still precedes them at the next flush.
	require.NoError(t, tr.RecordAction(id, "/detail", ""))

	store.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(sessions []*session.Session) bool {
		return len(sessions) == 1 && sessions[0].ActionsCount == 1
	})).Return(nil).Once()

	n, err := tr.ForceFlush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	store.AssertExpectations(t)
}

func TestForceFlush_DropsMutationsForUnknownSession(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, _ := newMockedTracker(t, store)
	ctx := context.Background()

	// An update whose session was pruned between enqueue and flush.
	tr.Queue().Enqueue(session.Mutation{
		Op:        session.OpUpdate,
		SessionID: "pruned",
		Endpoint:  "/search",
	})
	id := tr.StartSession("u1", "ios", "", "")

	store.On("Get", mock.Anything, "pruned").Return(nil, repository.ErrNotFound).Once()
	store.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(sessions []*session.Session) bool {
		return len(sessions) == 1 && sessions[0].ID == id
	})).Return(nil).Once()

	n, err := tr.ForceFlush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	store.AssertExpectations(t)
}

func TestForceFlush_StoreReadFailureRequeues(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, _ := newMockedTracker(t, store)
	ctx := context.Background()

	tr.Queue().Enqueue(session.Mutation{
		Op:        session.OpUpdate,
		SessionID: "s1",
		Endpoint:  "/search",
	})

	store.On("Get", mock.Anything, "s1").
		Return(nil, repository.ErrStoreUnavailable).Once()

	_, err := tr.ForceFlush(ctx)
	require.ErrorIs(t, err, repository.ErrStoreUnavailable)
	require.Equal(t, 1, tr.Queue().Len())
	store.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}

func TestForceFlush_FoldsUpdatesOntoStoredState(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, clock := newMockedTracker(t, store)
	ctx := context.Background()

	stored := &session.Session{
		ID:            "s1",
		UserID:        "u1",
		StartedAt:     clock.Now().Add(-time.Hour),
		ActionsCount:  4,
		EndpointsUsed: map[string]int64{"/search": 4},
	}
	store.On("Get", mock.Anything, "s1").Return(stored, nil).Once()
	store.On("UpsertBatch", mock.Anything, mock.MatchedBy(func(sessions []*session.Session) bool {
		return len(sessions) == 1 &&
			sessions[0].ActionsCount == 5 &&
			sessions[0].EndpointsUsed["/search"] == 5
	})).Return(nil).Once()

	tr.Queue().Enqueue(session.Mutation{
		Op:        session.OpUpdate,
		SessionID: "s1",
		Endpoint:  "/search",
		At:        clock.Now(),
	})

	_, err := tr.ForceFlush(ctx)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestScheduledFlush_CoalescesWhileLocked(t *testing.T) {
	store := &mocks.SessionRepository{}
	tr, _ := newMockedTracker(t, store)

	tr.StartSession("u1", "ios", "", "")

	// A tick arriving while the maintenance lock is held must skip without
	// draining.
	tr.flushMu.Lock()
	tr.scheduledFlush(context.Background())
	tr.flushMu.Unlock()

	require.Equal(t, 1, tr.Queue().Len())
	store.AssertNotCalled(t, "UpsertBatch", mock.Anything, mock.Anything)
}
