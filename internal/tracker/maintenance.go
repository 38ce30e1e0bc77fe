package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazehub/sessiontrack/internal/domain/errorlog"
	"github.com/hazehub/sessiontrack/internal/domain/session"
	"github.com/hazehub/sessiontrack/internal/repository"
)

// MaintenanceResult summarizes one partition/retention pass.
type MaintenanceResult struct {
	MonthsArchived   int
	SessionsArchived int64
	SessionsPruned   int64
	ErrorsPruned     int64
}

// RunMaintenance archives every eligible closed month and applies retention
// policy. It takes the store-maintenance lock, so it never interleaves with
// a flush; a month being closed out by a concurrent flush is either flushed
// before the eligibility scan or picked up on the next pass.
func (t *Tracker) RunMaintenance(ctx context.Context) (MaintenanceResult, error) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	return t.maintain(ctx)
}

// maintain does the work of RunMaintenance. Callers must hold flushMu.
func (t *Tracker) maintain(ctx context.Context) (MaintenanceResult, error) {
	var result MaintenanceResult

	ctx, cancel := context.WithTimeout(ctx, t.storeTimeout)
	defer cancel()

	var months []string
	if t.partitions != nil {
		var err error
		months, err = t.partitions.EligibleMonths(ctx, t.clock.Now())
		if err != nil {
			return result, fmt.Errorf("scanning eligible months: %w", err)
		}
	}

	for _, month := range months {
		moved, err := t.partitions.ArchiveMonth(ctx, month)
		if errors.Is(err, repository.ErrPartitionIntegrity) {
			// Abort this month, leave its live rows untouched, surface the
			// condition. Never fall back to delete-first.
			t.logger.Error("archive integrity check failed", "month", month, "error", err)
			if t.metrics != nil {
				t.metrics.ArchiveFailures.Inc()
			}
			t.trackError(errorlog.CategoryIntegrityFailure, err.Error())
			continue
		}
		if err != nil {
			t.logger.Error("archival failed", "month", month, "error", err)
			if t.metrics != nil {
				t.metrics.ArchiveFailures.Inc()
			}
			t.trackError(errorlog.CategoryArchiveFailed, err.Error())
			continue
		}
		if moved > 0 {
			t.logger.Info("archived month", "month", month, "sessions", moved)
			result.MonthsArchived++
			result.SessionsArchived += moved
		}
	}

	if t.retention > 0 {
		cutoff := t.clock.Now().UTC().Add(-t.retention)
		pruned, err := t.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			t.logger.Error("session retention cleanup failed", "error", err)
			t.trackError(errorlog.CategoryRetentionFailed, err.Error())
		} else if pruned > 0 {
			t.logger.Info("pruned old sessions", "count", pruned, "cutoff", cutoff)
			result.SessionsPruned = pruned
		}
	}

	if t.errorRetention > 0 && t.errorPruner != nil {
		cutoff := t.clock.Now().UTC().Add(-t.errorRetention)
		pruned, err := t.errorPruner.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			t.logger.Error("error log retention cleanup failed", "error", err)
		} else {
			result.ErrorsPruned = pruned
		}
	}

	// Retention removed rows the aggregator may have cached.
	if result.SessionsPruned > 0 && t.qcache != nil {
		t.qcache.InvalidateAll()
	}

	return result, nil
}

// maybeRunMonthRollover runs a maintenance pass right after a flush when the
// wall-clock month has advanced, instead of waiting for the next scheduled
// scan.
func (t *Tracker) maybeRunMonthRollover(ctx context.Context) {
	month := session.MonthKey(t.clock.Now())

	t.mu.Lock()
	rolled := t.lastFlushMonth != "" && t.lastFlushMonth != month
	t.lastFlushMonth = month
	t.mu.Unlock()

	if !rolled {
		return
	}
	if _, err := t.RunMaintenance(ctx); err != nil {
		t.logger.Error("month-rollover maintenance failed", "error", err)
	}
}
