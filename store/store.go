// Package store implements the content-addressed blob store backing the
// catalog. Blobs live at <root>/<hexDigest>.bin and extracted covers at
// <root>/<hexDigest>-cover.bin; the digest is the identity, so a path is
// a pure function of the content and files are never rewritten once
// published.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600

	blobSuffix  = ".bin"
	coverSuffix = "-cover.bin"
)

// Sentinel errors.
var (
	// ErrIO is returned when a filesystem operation fails.
	ErrIO = errors.New("store: i/o failure")

	// ErrInvalidDigest is returned when a digest is not a plain lowercase
	// hex string. Anything else could escape the storage root.
	ErrInvalidDigest = errors.New("store: invalid digest")
)

// Store is a content-addressed blob store rooted at a single directory.
// It is safe for concurrent use: writers of the same digest write
// identical bytes and writers of different digests touch disjoint paths.
type Store struct {
	root     string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// Option configures a Store.
type Option func(*Store)

// WithDirPerm sets the permissions used when creating the storage root.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithFilePerm sets the permissions for published blob files.
func WithFilePerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.filePerm = mode
	}
}

// New creates a store rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root is empty", ErrIO)
	}
	s := &Store{
		root:     filepath.Clean(root),
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.root, s.dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %v", ErrIO, s.root, err)
	}
	return s, nil
}

// Put stores content under its hex digest. It is idempotent: when a file
// already exists at the digest path the content is trusted to match (the
// digest is the identity) and the call returns without touching it.
// Publication is atomic via a temp file and rename, so a failed write
// never leaves a partial file at the canonical path.
func (s *Store) Put(ctx context.Context, hexDigest string, content []byte) error {
	path, err := s.Path(hexDigest)
	if err != nil {
		return err
	}
	return s.put(ctx, path, content)
}

// PutCover stores an extracted cover image for the given content digest.
// Same idempotency and atomicity rules as Put.
func (s *Store) PutCover(ctx context.Context, hexDigest string, content []byte) error {
	path, err := s.CoverPath(hexDigest)
	if err != nil {
		return err
	}
	return s.put(ctx, path, content)
}

// Path derives the canonical blob path for a digest. It does not check
// existence.
func (s *Store) Path(hexDigest string) (string, error) {
	if err := validateDigest(hexDigest); err != nil {
		return "", err
	}
	return filepath.Join(s.root, hexDigest+blobSuffix), nil
}

// CoverPath derives the canonical cover path for a digest. It does not
// check existence.
func (s *Store) CoverPath(hexDigest string) (string, error) {
	if err := validateDigest(hexDigest); err != nil {
		return "", err
	}
	return filepath.Join(s.root, hexDigest+coverSuffix), nil
}

func (s *Store) put(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(s.root, "put-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrIO, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", ErrIO, err)
	}
	if err := os.Chmod(tmpPath, s.filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod temp file: %v", ErrIO, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// A concurrent writer of the same digest may have published
		// first; their bytes are identical to ours.
		if _, statErr := os.Stat(path); statErr == nil {
			_ = os.Remove(tmpPath)
			return nil
		}
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: publish %s: %v", ErrIO, path, err)
	}
	return nil
}

// validateDigest accepts only non-empty lowercase hex strings.
func validateDigest(hexDigest string) error {
	if hexDigest == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDigest)
	}
	for _, r := range hexDigest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidDigest, hexDigest)
		}
	}
	return nil
}
