package shelf

import (
	"errors"

	"github.com/meigma/shelf/registry"
	"github.com/meigma/shelf/store"
)

// Errors re-exported from store.
var (
	// ErrStorage is returned when a blob store filesystem operation fails.
	ErrStorage = store.ErrIO

	// ErrInvalidDigest is returned when a content digest is malformed.
	ErrInvalidDigest = store.ErrInvalidDigest
)

// Errors re-exported from registry.
var (
	// ErrRegistry is returned when catalog persistence fails.
	ErrRegistry = registry.ErrBackend

	// ErrNotFound is returned when an entry does not exist or belongs to
	// a different owner.
	ErrNotFound = registry.ErrNotFound
)

// Errors specific to the shelf package.
var (
	// ErrNoCover is returned by FetchCover when no cover image was ever
	// extracted for an entry's content.
	ErrNoCover = errors.New("shelf: no cover")
)
