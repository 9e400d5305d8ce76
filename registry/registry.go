// Package registry persists the relational side of the catalog: users,
// file types, extracted book metadata, and per-upload catalog entries.
//
// All lookup-or-create paths (file types by extension, metadata by content
// hash) push uniqueness into the database with INSERT ... ON CONFLICT DO
// NOTHING followed by a SELECT, so concurrent first-sightings across
// multiple processes sharing the same database cannot create duplicate
// rows. An in-process mutex would not survive a second service instance.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS file_types (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS book_metadata (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	book_hash  TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	creator    TEXT NOT NULL,
	cover_mime TEXT
);

CREATE TABLE IF NOT EXISTS catalog_entries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	owner_id     INTEGER NOT NULL REFERENCES users(id),
	file_type_id INTEGER NOT NULL REFERENCES file_types(id)
);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_owner ON catalog_entries(owner_id);
`

// FileType is a canonical file-type record keyed by lowercase extension.
type FileType struct {
	ID   int64
	Name string
}

// Metadata is the extracted, hash-keyed enrichment for a blob. It is
// shared by every catalog entry pointing at the same content hash.
// CoverMime is empty when no cover was extracted.
type Metadata struct {
	BookHash  string
	Title     string
	Creator   string
	CoverMime string
}

// Entry is one upload event: an owner, a filename-derived title, and a
// pointer into the blob store via the content hash.
type Entry struct {
	ID          int64
	OwnerID     int64
	Title       string
	ContentHash string
	FileTypeID  int64
}

// Registry provides catalog persistence over a SQLite database.
// It is safe for concurrent use.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. The path may be any sqlite3 DSN path; foreign keys are enforced.
func Open(ctx context.Context, path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrBackend, path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrBackend, err)
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// EnsureUser makes sure a user row exists for id. Identity itself is
// managed elsewhere; this only gives catalog rows a foreign-key target.
func (r *Registry) EnsureUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("%w: ensure user %d: %v", ErrBackend, id, err)
	}
	return nil
}

// ClassifyExtension resolves a filename extension to its file-type id,
// creating the record on first sight. The extension is lowercased and
// stripped of a leading dot before lookup, so "EPUB", ".epub" and "epub"
// all resolve to the same record.
func (r *Registry) ClassifyExtension(ctx context.Context, ext string) (int64, error) {
	name := strings.ToLower(strings.TrimPrefix(ext, "."))

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO file_types (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("%w: insert file type %q: %v", ErrBackend, name, err)
	}

	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM file_types WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: select file type %q: %v", ErrBackend, name, err)
	}
	return id, nil
}

// FileTypeByID returns the file-type record with the given id.
func (r *Registry) FileTypeByID(ctx context.Context, id int64) (FileType, error) {
	var ft FileType
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM file_types WHERE id = ?`, id).Scan(&ft.ID, &ft.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return FileType{}, fmt.Errorf("file type %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return FileType{}, fmt.Errorf("%w: select file type %d: %v", ErrBackend, id, err)
	}
	return ft, nil
}

// HasMetadata reports whether a metadata row exists for the content hash.
func (r *Registry) HasMetadata(ctx context.Context, hash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM book_metadata WHERE book_hash = ?`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: probe metadata %s: %v", ErrBackend, hash, err)
	}
	return true, nil
}

// InsertMetadata stores an extracted metadata row. At most one row exists
// per content hash: a concurrent duplicate insert is silently dropped,
// keeping whichever row won the race.
func (r *Registry) InsertMetadata(ctx context.Context, m Metadata) error {
	mime := sql.NullString{String: m.CoverMime, Valid: m.CoverMime != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO book_metadata (book_hash, title, creator, cover_mime)
		 VALUES (?, ?, ?, ?) ON CONFLICT (book_hash) DO NOTHING`,
		m.BookHash, m.Title, m.Creator, mime)
	if err != nil {
		return fmt.Errorf("%w: insert metadata %s: %v", ErrBackend, m.BookHash, err)
	}
	return nil
}

// MetadataByHash returns the metadata row for a content hash, or nil when
// none was ever extracted. Absence is not an error.
func (r *Registry) MetadataByHash(ctx context.Context, hash string) (*Metadata, error) {
	var m Metadata
	var mime sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT book_hash, title, creator, cover_mime FROM book_metadata WHERE book_hash = ?`,
		hash).Scan(&m.BookHash, &m.Title, &m.Creator, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select metadata %s: %v", ErrBackend, hash, err)
	}
	m.CoverMime = mime.String
	return &m, nil
}

// InsertEntry creates a catalog entry and returns it with its generated id.
func (r *Registry) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO catalog_entries (title, content_hash, owner_id, file_type_id)
		 VALUES (?, ?, ?, ?)`,
		e.Title, e.ContentHash, e.OwnerID, e.FileTypeID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: insert entry for owner %d: %v", ErrBackend, e.OwnerID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: entry id: %v", ErrBackend, err)
	}
	e.ID = id
	return e, nil
}

// EntryByID returns the catalog entry with the given id, but only when it
// belongs to ownerID. A row owned by someone else is indistinguishable
// from a missing row.
func (r *Registry) EntryByID(ctx context.Context, id, ownerID int64) (Entry, error) {
	var e Entry
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, content_hash, file_type_id
		 FROM catalog_entries WHERE id = ? AND owner_id = ?`,
		id, ownerID).Scan(&e.ID, &e.OwnerID, &e.Title, &e.ContentHash, &e.FileTypeID)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: select entry %d: %v", ErrBackend, id, err)
	}
	return e, nil
}

// EntriesByOwner returns all catalog entries owned by ownerID, ordered by
// id. Ordering is an implementation convenience, not a contract.
func (r *Registry) EntriesByOwner(ctx context.Context, ownerID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, title, content_hash, file_type_id
		 FROM catalog_entries WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries for owner %d: %v", ErrBackend, ownerID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.ContentHash, &e.FileTypeID); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", ErrBackend, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list entries for owner %d: %v", ErrBackend, ownerID, err)
	}
	return entries, nil
}

// DeleteEntry removes the catalog entry matching both id and owner and
// reports how many rows were deleted (zero when the entry does not exist
// or belongs to someone else). The referenced blob and metadata are left
// alone; other entries may share them.
func (r *Registry) DeleteEntry(ctx context.Context, id, ownerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM catalog_entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete entry %d: %v", ErrBackend, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete entry %d: %v", ErrBackend, id, err)
	}
	return n, nil
}
