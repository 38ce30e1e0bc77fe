package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is returned when a transaction could not commit.
	// Batched writes hitting this error are requeued, never dropped.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPartitionIntegrity is returned when an archive copy's row count does
	// not match the live rows it was copied from. Archival of that month is
	// aborted and the live rows are left untouched.
	ErrPartitionIntegrity = errors.New("partition integrity check failed")
)
