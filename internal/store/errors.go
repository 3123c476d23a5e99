package store

import "errors"

var (
	// ErrNotFound indicates a lookup found no matching row.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict indicates an optimistic concurrency check failed:
	// the caller's expected version no longer matches the stored version.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrDuplicateKey indicates a unique constraint rejected the write
	// (duplicate commandId, idempotencyKey, or scopeKey).
	ErrDuplicateKey = errors.New("store: duplicate key")
)
