package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

func TestPutIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("hello")
	hash := digest.FromBytes(content).Encoded()
	ctx := context.Background()

	if err := s.Put(ctx, hash, content); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, hash, content); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	path, err := s.Path(hash)
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("blob content = %q, want %q", got, content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading storage root: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("storage root has %d entries, want 1", len(entries))
	}
}

func TestPutTrustsExistingFile(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("original")
	hash := digest.FromBytes(content).Encoded()
	ctx := context.Background()

	if err := s.Put(ctx, hash, content); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// The existing-content check is a stat, not a byte comparison:
	// a published file is never rewritten.
	path, _ := s.Path(hash)
	if err := os.WriteFile(path, []byte("tampered"), 0o600); err != nil {
		t.Fatalf("overwriting blob: %v", err)
	}
	if err := s.Put(ctx, hash, content); err != nil {
		t.Fatalf("Put() over existing file error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if string(got) != "tampered" {
		t.Fatalf("blob content = %q, want existing file left untouched", got)
	}
}

func TestPathDerivation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hash := digest.FromBytes([]byte("x")).Encoded()

	path, err := s.Path(hash)
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if want := filepath.Join(dir, hash+".bin"); path != want {
		t.Fatalf("Path() = %q, want %q", path, want)
	}

	cover, err := s.CoverPath(hash)
	if err != nil {
		t.Fatalf("CoverPath() error = %v", err)
	}
	if want := filepath.Join(dir, hash+"-cover.bin"); cover != want {
		t.Fatalf("CoverPath() = %q, want %q", cover, want)
	}

	// Path derivation never checks existence.
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no blob on disk, stat err = %v", err)
	}
}

func TestInvalidDigest(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name   string
		digest string
	}{
		{"empty", ""},
		{"uppercase", "ABCDEF"},
		{"traversal", "../../etc/passwd"},
		{"separator", "ab/cd"},
		{"non-hex", "zzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Path(tt.digest); !errors.Is(err, ErrInvalidDigest) {
				t.Fatalf("Path(%q) error = %v, want ErrInvalidDigest", tt.digest, err)
			}
			if err := s.Put(context.Background(), tt.digest, []byte("x")); !errors.Is(err, ErrInvalidDigest) {
				t.Fatalf("Put(%q) error = %v, want ErrInvalidDigest", tt.digest, err)
			}
		})
	}
}

func TestPutCoverSeparateFromBlob(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("book bytes")
	cover := []byte("cover bytes")
	hash := digest.FromBytes(content).Encoded()
	ctx := context.Background()

	if err := s.Put(ctx, hash, content); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.PutCover(ctx, hash, cover); err != nil {
		t.Fatalf("PutCover() error = %v", err)
	}

	blobPath, _ := s.Path(hash)
	coverPath, _ := s.CoverPath(hash)
	gotBlob, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	gotCover, err := os.ReadFile(coverPath)
	if err != nil {
		t.Fatalf("reading cover: %v", err)
	}
	if !bytes.Equal(gotBlob, content) || !bytes.Equal(gotCover, cover) {
		t.Fatalf("blob/cover contents mixed up: blob=%q cover=%q", gotBlob, gotCover)
	}
}

func TestConcurrentPutSameDigest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := bytes.Repeat([]byte("payload"), 1024)
	hash := digest.FromBytes(content).Encoded()

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			return s.Put(context.Background(), hash, content)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Put() error = %v", err)
	}

	path, _ := s.Path(hash)
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("blob content corrupted by concurrent writers")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading storage root: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("storage root has %d entries, want 1 (no leftover temp files)", len(entries))
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	content := []byte("x")
	if err := s.Put(ctx, digest.FromBytes(content).Encoded(), content); !errors.Is(err, ErrIO) {
		t.Fatalf("Put() with cancelled context error = %v, want ErrIO", err)
	}
}
