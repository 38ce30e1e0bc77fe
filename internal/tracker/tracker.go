// Package tracker implements the session tracking engine: the producer-facing
// tracker API, the batch queue, the flush worker and the partition manager.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hazehub/sessiontrack/internal/cache"
	"github.com/hazehub/sessiontrack/internal/domain/errorlog"
	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

const (
	// DefaultFlushInterval is the wall-clock period between scheduled flushes.
	DefaultFlushInterval = 300 * time.Second
	// DefaultPartitionCheckInterval is how often archival eligibility is scanned.
	DefaultPartitionCheckInterval = 24 * time.Hour
	// DefaultStoreTimeout bounds a single store operation so a stuck
	// transaction cannot block the flush worker indefinitely.
	DefaultStoreTimeout = 30 * time.Second
)

// ErrorTracker records asynchronous failures for operational inspection.
type ErrorTracker interface {
	Track(ctx context.Context, category errorlog.Category, message string, sessionID *string) error
}

// ErrorPruner removes error-log entries older than a cutoff. Satisfied by the
// SQLite error log repository; wired only when error retention is enabled.
type ErrorPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options configures a Tracker. Store is required; everything else has a
// usable default.
type Options struct {
	Store       repository.SessionRepository
	Partitions  repository.PartitionRepository
	Cache       *cache.Cache
	ErrorLog    ErrorTracker
	ErrorPruner ErrorPruner
	Clock       quartz.Clock
	Logger      *slog.Logger
	Metrics     *Metrics

	FlushInterval          time.Duration
	PartitionCheckInterval time.Duration
	StoreTimeout           time.Duration
	RetentionDays          int
	ErrorRetentionDays     int
}

// Tracker is the public session tracking engine. Producer operations
// (StartSession, RecordAction, EndSession) only touch the batch queue and
// the open-session set; the flush worker is the sole writer to the store.
type Tracker struct {
	queue       *Queue
	store       repository.SessionRepository
	partitions  repository.PartitionRepository
	qcache      *cache.Cache
	errlog      ErrorTracker
	errorPruner ErrorPruner
	clock       quartz.Clock
	logger      *slog.Logger
	metrics     *Metrics

	flushInterval     time.Duration
	partitionInterval time.Duration
	storeTimeout      time.Duration
	retention         time.Duration
	errorRetention    time.Duration

	mu   sync.RWMutex
	open map[string]struct{}

	// flushMu is the store-maintenance lock: it serializes flushes against
	// each other and against partition archival. A scheduled tick that finds
	// it held coalesces into a no-op.
	flushMu sync.Mutex

	lastFlushMonth string
}

// New creates a Tracker.
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.PartitionCheckInterval <= 0 {
		opts.PartitionCheckInterval = DefaultPartitionCheckInterval
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}

	return &Tracker{
		queue:             NewQueue(),
		store:             opts.Store,
		partitions:        opts.Partitions,
		qcache:            opts.Cache,
		errlog:            opts.ErrorLog,
		errorPruner:       opts.ErrorPruner,
		clock:             opts.Clock,
		logger:            opts.Logger,
		metrics:           opts.Metrics,
		flushInterval:     opts.FlushInterval,
		partitionInterval: opts.PartitionCheckInterval,
		storeTimeout:      opts.StoreTimeout,
		retention:         time.Duration(opts.RetentionDays) * 24 * time.Hour,
		errorRetention:    time.Duration(opts.ErrorRetentionDays) * 24 * time.Hour,
		open:              make(map[string]struct{}),
	}
}

// Queue exposes the batch queue for monitoring.
func (t *Tracker) Queue() *Queue {
	return t.queue
}

// SetMetrics attaches metrics after construction. The queue-depth gauge reads
// live queue state, so the Metrics value needs the queue, which the Tracker
// owns. Call before Run.
func (t *Tracker) SetMetrics(m *Metrics) {
	t.metrics = m
}

// StartSession creates a new open session and returns its ID. It never fails
// for well-formed input: the create mutation is queued and applied at the
// next flush.
func (t *Tracker) StartSession(userID, platform, deviceInfo, appVersion string) string {
	id := uuid.NewString()
	now := t.clock.Now().UTC()

	sess := &session.Session{
		ID:             id,
		UserID:         userID,
		Platform:       platform,
		DeviceInfo:     deviceInfo,
		AppVersion:     appVersion,
		StartedAt:      now,
		EndpointsUsed:  map[string]int64{},
		ScreensVisited: []string{},
	}

	t.mu.Lock()
	t.open[id] = struct{}{}
	t.mu.Unlock()

	t.queue.Enqueue(session.Mutation{Op: session.OpCreate, SessionID: id, Session: sess})
	t.logger.Debug("queued session start", "session_id", id, "user_id", userID)
	return id
}

// RecordAction records one feature call on an open session, incrementing its
// action count and the per-endpoint counter, and appending to the screen
// trail if screen is non-empty. Returns session.ErrSessionNotFound if the
// session is not in the open view; callers must treat that as a soft failure.
func (t *Tracker) RecordAction(sessionID, endpoint, screen string) error {
	t.mu.RLock()
	_, ok := t.open[sessionID]
	t.mu.RUnlock()
	if !ok {
		return session.ErrSessionNotFound
	}

	t.queue.Enqueue(session.Mutation{
		Op:        session.OpUpdate,
		SessionID: sessionID,
		Endpoint:  endpoint,
		Screen:    screen,
		At:        t.clock.Now().UTC(),
	})
	return nil
}

// EndSession closes a session. Delivery is at-least-once, so a second call
// (or a call for an unknown ID) is a no-op rather than an error.
func (t *Tracker) EndSession(sessionID string) error {
	t.mu.Lock()
	_, ok := t.open[sessionID]
	if ok {
		delete(t.open, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}

	t.queue.Enqueue(session.Mutation{
		Op:        session.OpClose,
		SessionID: sessionID,
		At:        t.clock.Now().UTC(),
	})
	return nil
}

// LoadOpenSessions rebuilds the open-session view from the store, so that
// sessions left open across a restart accept further actions.
func (t *Tracker) LoadOpenSessions(ctx context.Context) error {
	ids, err := t.store.ListOpenIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading open sessions: %w", err)
	}

	t.mu.Lock()
	for _, id := range ids {
		t.open[id] = struct{}{}
	}
	t.mu.Unlock()

	t.logger.Info("loaded open sessions", "count", len(ids))
	return nil
}

// Run drives the flush and partition-check tickers until ctx is cancelled.
// Callers should ForceFlush before releasing the store on shutdown.
func (t *Tracker) Run(ctx context.Context) error {
	var eg errgroup.Group

	flushTicker := t.clock.TickerFunc(ctx, t.flushInterval, func() error {
		t.scheduledFlush(ctx)
		return nil
	}, "flush")
	eg.Go(func() error { return waitIgnoringCancel(flushTicker) })

	if t.partitions != nil {
		partTicker := t.clock.TickerFunc(ctx, t.partitionInterval, func() error {
			if _, err := t.RunMaintenance(ctx); err != nil {
				t.logger.Error("maintenance pass failed", "error", err)
			}
			return nil
		}, "partition")
		eg.Go(func() error { return waitIgnoringCancel(partTicker) })
	}

	return eg.Wait()
}

func waitIgnoringCancel(w quartz.Waiter) error {
	if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
