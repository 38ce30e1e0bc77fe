// Package mocks provides testify mocks for the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

// SessionRepository is a mock for repository.SessionRepository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) UpsertBatch(ctx context.Context, sessions []*session.Session) error {
	args := m.Called(ctx, sessions)
	return args.Error(0)
}

func (m *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if sess, ok := args.Get(0).(*session.Session); ok {
		return sess, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) Query(ctx context.Context, opts repository.QueryOptions) ([]session.Session, error) {
	args := m.Called(ctx, opts)
	if sessions, ok := args.Get(0).([]session.Session); ok {
		return sessions, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) ListOpenIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// PartitionRepository is a mock for repository.PartitionRepository.
type PartitionRepository struct {
	mock.Mock
}

func (m *PartitionRepository) EligibleMonths(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if months, ok := args.Get(0).([]string); ok {
		return months, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PartitionRepository) ArchiveMonth(ctx context.Context, month string) (int64, error) {
	args := m.Called(ctx, month)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PartitionRepository) ArchivedMonths(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if months, ok := args.Get(0).([]string); ok {
		return months, args.Error(1)
	}
	return nil, args.Error(1)
}
