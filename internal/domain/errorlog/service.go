package errorlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
)

// Repository provides persistence for error log entries.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
}

// ListOptions filters error log listings.
type ListOptions struct {
	Category Category
	Since    time.Time
	Limit    int
}

// Service handles error log operations.
type Service struct {
	repo   Repository
	clock  quartz.Clock
	logger *slog.Logger
}

// NewService creates a new error log service.
func NewService(repo Repository, clock quartz.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clock: clock, logger: logger}
}

// Track appends a failure record. A nil sessionID is allowed for failures
// not tied to a particular session.
func (s *Service) Track(ctx context.Context, category Category, message string, sessionID *string) error {
	entry := &Entry{
		Category:   category,
		Message:    message,
		SessionID:  sessionID,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		// The error log lives in the same store that may be failing; the
		// slog record is the fallback channel.
		s.logger.Error("failed to record error log entry",
			"category", category, "message", message, "error", err)
		return fmt.Errorf("tracking error: %w", err)
	}
	return nil
}

// Recent lists error log entries with filtering.
func (s *Service) Recent(ctx context.Context, opts ListOptions) ([]Entry, error) {
	return s.repo.List(ctx, opts)
}
