package sqlite

import (
	"fmt"

	"github.com/hazehub/sessiontrack/internal/repository"
)

// unavailable wraps a driver error so callers can match
// repository.ErrStoreUnavailable with errors.Is while keeping the cause in
// the message.
func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %v", msg, repository.ErrStoreUnavailable, err)
}
