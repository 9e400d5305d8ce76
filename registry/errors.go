package registry

import "errors"

// Sentinel errors.
var (
	// ErrNotFound is returned when no row matches the requested id and owner.
	ErrNotFound = errors.New("registry: not found")

	// ErrBackend is returned when the underlying database fails.
	// Operations that fail with it are safe to retry.
	ErrBackend = errors.New("registry: backend failure")
)
