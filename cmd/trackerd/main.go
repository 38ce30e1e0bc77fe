package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazehub/sessiontrack/internal/cache"
	"github.com/hazehub/sessiontrack/internal/config"
	"github.com/hazehub/sessiontrack/internal/domain/errorlog"
	"github.com/hazehub/sessiontrack/internal/domain/stats"
	"github.com/hazehub/sessiontrack/internal/sqlite"
	"github.com/hazehub/sessiontrack/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	clock := quartz.NewReal()

	sessionRepo := sqlite.NewSessionRepository(db)
	partitionRepo := sqlite.NewPartitionRepository(db)
	errorRepo := sqlite.NewErrorLogRepository(db)

	queryCache := cache.New(cfg.Tracker.CacheTTL, clock)
	errorSvc := errorlog.NewService(errorRepo, clock, logger)

	registry := prometheus.NewRegistry()

	engine := tracker.New(tracker.Options{
		Store:                  sessionRepo,
		Partitions:             partitionRepo,
		Cache:                  queryCache,
		ErrorLog:               errorSvc,
		ErrorPruner:            errorRepo,
		Clock:                  clock,
		Logger:                 logger,
		FlushInterval:          cfg.Tracker.BatchInterval,
		PartitionCheckInterval: cfg.Tracker.PartitionCheckInterval,
		StoreTimeout:           cfg.Tracker.StoreTimeout,
		RetentionDays:          cfg.Retention.SessionDays,
		ErrorRetentionDays:     cfg.Retention.ErrorDays,
	})
	metrics := tracker.NewMetrics(registry, engine.Queue(), queryCache)
	engine.SetMetrics(metrics)

	statsSvc := stats.NewService(sessionRepo, queryCache, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.LoadOpenSessions(ctx); err != nil {
		logger.Error("failed to load open sessions", "error", err)
		os.Exit(1)
	}

	if summary, err := statsSvc.GetSummary(ctx, time.Time{}, time.Time{}); err == nil {
		logger.Info("store summary",
			"sessions", summary.TotalSessions,
			"users", summary.UniqueUsers,
			"actions", summary.TotalActions)
	}

	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx)
	}()

	logger.Info("tracker started",
		"db", cfg.DB.Path,
		"batch_interval", cfg.Tracker.BatchInterval,
		"partition_check_interval", cfg.Tracker.PartitionCheckInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	<-done

	// Drain anything still queued before releasing the store.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer flushCancel()
	if n, err := engine.ForceFlush(flushCtx); err != nil {
		logger.Error("final flush failed", "error", err)
	} else if n > 0 {
		logger.Info("final flush complete", "mutations", n)
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
