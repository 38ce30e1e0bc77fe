package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazehub/sessiontrack/internal/domain/errorlog"
	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

// ForceFlush synchronously drains the batch queue and applies it to the
// store, returning the number of mutations applied. It waits for any
// in-progress scheduled flush or archival pass to finish first.
func (t *Tracker) ForceFlush(ctx context.Context) (int, error) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	return t.flush(ctx)
}

// scheduledFlush is the ticker entry point. A tick that fires while a flush
// or archival pass holds the maintenance lock is coalesced into a no-op; the
// next tick picks up anything queued since.
func (t *Tracker) scheduledFlush(ctx context.Context) {
	if !t.flushMu.TryLock() {
		t.logger.Debug("flush already in progress, skipping tick")
		return
	}
	n, err := t.flush(ctx)
	t.flushMu.Unlock()

	if err != nil {
		t.logger.Error("scheduled flush failed", "error", err)
		return
	}
	if n > 0 {
		t.logger.Info("flushed batch", "mutations", n)
	}

	// Archive opportunistically once the wall-clock month rolls over.
	t.maybeRunMonthRollover(ctx)
}

// flush drains the queue, materializes final session states and writes them
// in one transaction. On store failure the drained batch is requeued at the
// front; it is retried on the next cycle, never in a tight loop. Callers
// must hold flushMu.
func (t *Tracker) flush(ctx context.Context) (int, error) {
	batch := t.queue.DrainAll()
	if len(batch) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.storeTimeout)
	defer cancel()

	states, err := t.materialize(ctx, batch)
	if err == nil {
		err = t.store.UpsertBatch(ctx, states)
	}
	if err != nil {
		t.queue.RequeueFront(batch)
		if t.metrics != nil {
			t.metrics.FlushFailures.Inc()
		}
		t.trackError(errorlog.CategoryFlushFailed, err.Error())
		return 0, fmt.Errorf("flush of %d mutations failed, batch requeued: %w", len(batch), err)
	}

	if t.metrics != nil {
		t.metrics.FlushesTotal.Inc()
		t.metrics.MutationsApplied.Add(float64(len(batch)))
	}
	if t.qcache != nil {
		t.qcache.InvalidateAll()
	}

	return len(batch), nil
}

// materialize groups the batch by session and folds each session's mutations,
// in enqueue order, into its final state. Sessions whose create is not part
// of the batch are loaded from the store first.
func (t *Tracker) materialize(ctx context.Context, batch []session.Mutation) ([]*session.Session, error) {
	var order []string
	grouped := make(map[string][]session.Mutation)
	for _, m := range batch {
		if _, ok := grouped[m.SessionID]; !ok {
			order = append(order, m.SessionID)
		}
		grouped[m.SessionID] = append(grouped[m.SessionID], m)
	}

	states := make([]*session.Session, 0, len(order))
	for _, id := range order {
		muts := grouped[id]

		var state *session.Session
		if muts[0].Op == session.OpCreate {
			state = muts[0].Session.Clone()
			muts = muts[1:]
		} else {
			existing, err := t.store.Get(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				// The session was pruned or never created; the updates are a
				// tolerated lost write, not a flush failure.
				t.logger.Warn("dropping mutations for unknown session",
					"session_id", id, "mutations", len(muts))
				if t.metrics != nil {
					t.metrics.MutationsDropped.Add(float64(len(muts)))
				}
				continue
			}
			if err != nil {
				return nil, err
			}
			state = existing
		}

		for _, m := range muts {
			applyMutation(state, m)
		}
		states = append(states, state)
	}

	return states, nil
}

func applyMutation(state *session.Session, m session.Mutation) {
	switch m.Op {
	case session.OpCreate:
		// Duplicate create under at-least-once delivery; the first one wins.
	case session.OpUpdate:
		if state.EndedAt != nil {
			return // closed sessions are immutable
		}
		state.ActionsCount++
		if state.EndpointsUsed == nil {
			state.EndpointsUsed = map[string]int64{}
		}
		state.EndpointsUsed[m.Endpoint]++
		if m.Screen != "" {
			state.ScreensVisited = append(state.ScreensVisited, m.Screen)
		}
	case session.OpClose:
		if state.EndedAt == nil {
			at := m.At
			state.EndedAt = &at
		}
	}
}

func (t *Tracker) trackError(category errorlog.Category, message string) {
	if t.errlog == nil {
		return
	}
	// Best effort: the error log shares the store that may be failing, and
	// Track falls back to slog on its own.
	ctx, cancel := context.WithTimeout(context.Background(), t.storeTimeout)
	defer cancel()
	_ = t.errlog.Track(ctx, category, message, nil)
}
