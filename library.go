package shelf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/shelf/extract"
	"github.com/meigma/shelf/extract/epub"
	"github.com/meigma/shelf/registry"
	"github.com/meigma/shelf/store"
)

// Library is the ingestion pipeline and the per-owner catalog view over
// it. All operations are safe for concurrent use; nothing holds a lock
// across the blob store and the registry.
type Library struct {
	cfg        Config
	store      *store.Store
	registry   *registry.Registry
	extractors map[string]extract.Extractor
	logger     *slog.Logger

	// extracting collapses concurrent metadata extraction of the same
	// digest within this process. The durable once-per-hash guarantee is
	// the registry's unique constraint; this only avoids parsing the
	// same payload twice when duplicate uploads race.
	extracting singleflight.Group
}

// New creates a Library storing blobs under cfg.StorageRoot and catalog
// rows in reg. The EPUB extractor is registered by default; others can
// be added with WithExtractor.
func New(cfg Config, reg *registry.Registry, opts ...Option) (*Library, error) {
	if cfg.DefaultExtension == "" {
		cfg.DefaultExtension = DefaultExtension
	}
	cfg.DefaultExtension = normalizeExt(cfg.DefaultExtension)

	st, err := store.New(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	l := &Library{
		cfg:      cfg,
		store:    st,
		registry: reg,
		extractors: map[string]extract.Extractor{
			"epub": epub.New(),
		},
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (l *Library) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

// Ingest runs the full pipeline for one upload: digest the content,
// store the blob idempotently, classify the filename extension, enrich
// with extracted metadata when this is the first sighting of the digest,
// and create the catalog entry.
//
// Storage and registry failures abort the ingest; because the blob write
// is idempotent and keyed by content, retrying the identical upload
// after any failure is safe and yields a single catalog entry.
// Extraction failures never abort anything.
func (l *Library) Ingest(ctx context.Context, ownerID int64, filename string, content []byte) (Entry, error) {
	hash := digest.FromBytes(content).Encoded()

	if err := l.store.Put(ctx, hash, content); err != nil {
		return Entry{}, err
	}

	title, ext := splitFilename(filename, l.cfg.DefaultExtension)
	typeID, err := l.registry.ClassifyExtension(ctx, ext)
	if err != nil {
		return Entry{}, err
	}

	l.enrich(ctx, hash, ext, content)

	entry, err := l.registry.InsertEntry(ctx, Entry{
		OwnerID:     ownerID,
		Title:       title,
		ContentHash: hash,
		FileTypeID:  typeID,
	})
	if err != nil {
		return Entry{}, err
	}

	l.log().Info("ingested",
		slog.Int64("owner", ownerID),
		slog.Int64("entry", entry.ID),
		slog.String("hash", hash),
		slog.String("type", ext))
	return entry, nil
}

// enrich extracts and persists metadata for hash unless a row already
// exists. It is best-effort by contract: the payload is untrusted input
// to a format parser, so every failure here is logged and swallowed.
func (l *Library) enrich(ctx context.Context, hash, ext string, content []byte) {
	l.extracting.Do(hash, func() (any, error) {
		exists, err := l.registry.HasMetadata(ctx, hash)
		if err != nil {
			l.log().Warn("metadata probe failed", slog.String("hash", hash), slog.Any("error", err))
			return nil, nil
		}
		if exists {
			return nil, nil
		}

		x, ok := l.extractors[ext]
		if !ok {
			x = extract.Discard
		}
		md, ok := x.Extract(content)
		if !ok {
			l.log().Debug("no extractable metadata",
				slog.String("hash", hash), slog.String("type", ext))
			return nil, nil
		}

		row := Metadata{BookHash: hash, Title: md.Title, Creator: md.Creator}
		if md.Cover != nil {
			if err := l.store.PutCover(ctx, hash, md.Cover); err != nil {
				l.log().Warn("cover write failed", slog.String("hash", hash), slog.Any("error", err))
			} else {
				row.CoverMime = md.CoverMime
			}
		}
		if err := l.registry.InsertMetadata(ctx, row); err != nil {
			l.log().Warn("metadata insert failed", slog.String("hash", hash), slog.Any("error", err))
		}
		return nil, nil
	})
}

// Describe returns the full descriptor for an entry owned by ownerID.
func (l *Library) Describe(ctx context.Context, entryID, ownerID int64) (Descriptor, error) {
	e, err := l.registry.EntryByID(ctx, entryID, ownerID)
	if err != nil {
		return Descriptor{}, err
	}
	ft, err := l.registry.FileTypeByID(ctx, e.FileTypeID)
	if err != nil {
		return Descriptor{}, err
	}
	md, err := l.registry.MetadataByHash(ctx, e.ContentHash)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Entry: e, FileType: ft, Metadata: md}, nil
}

// List returns all entries owned by ownerID.
func (l *Library) List(ctx context.Context, ownerID int64) ([]Entry, error) {
	return l.registry.EntriesByOwner(ctx, ownerID)
}

// FetchBlob returns the on-disk blob path for an entry owned by ownerID
// together with the download filename "<title>.<extension>".
func (l *Library) FetchBlob(ctx context.Context, entryID, ownerID int64) (path, filename string, err error) {
	e, err := l.registry.EntryByID(ctx, entryID, ownerID)
	if err != nil {
		return "", "", err
	}
	ft, err := l.registry.FileTypeByID(ctx, e.FileTypeID)
	if err != nil {
		return "", "", err
	}
	path, err = l.store.Path(e.ContentHash)
	if err != nil {
		return "", "", err
	}
	return path, e.Title + "." + ft.Name, nil
}

// FetchCover returns the stored cover image for an entry owned by
// ownerID. It fails with ErrNoCover when extraction never produced a
// cover for the entry's content.
func (l *Library) FetchCover(ctx context.Context, entryID, ownerID int64) (Cover, error) {
	e, err := l.registry.EntryByID(ctx, entryID, ownerID)
	if err != nil {
		return Cover{}, err
	}
	md, err := l.registry.MetadataByHash(ctx, e.ContentHash)
	if err != nil {
		return Cover{}, err
	}
	if md == nil || md.CoverMime == "" {
		return Cover{}, fmt.Errorf("entry %d: %w", entryID, ErrNoCover)
	}
	path, err := l.store.CoverPath(e.ContentHash)
	if err != nil {
		return Cover{}, err
	}
	return Cover{Path: path, Mime: md.CoverMime, Name: e.Title + "-cover"}, nil
}

// Remove deletes the catalog entry matching both entryID and ownerID and
// reports how many rows were deleted. The blob and metadata stay: other
// entries, possibly owned by other users, may reference the same hash.
func (l *Library) Remove(ctx context.Context, entryID, ownerID int64) (int64, error) {
	n, err := l.registry.DeleteEntry(ctx, entryID, ownerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log().Info("removed entry",
			slog.Int64("owner", ownerID), slog.Int64("entry", entryID))
	}
	return n, nil
}

// splitFilename derives the catalog title and normalized extension from
// an upload filename. A bare dotfile like ".epub" is a stem with no
// extension, a missing stem falls back to "unk", and a missing
// extension to defaultExt, so extension-less uploads are still
// classified as the primary format.
func splitFilename(filename, defaultExt string) (title, ext string) {
	base := filepath.Base(filename)
	dotExt := filepath.Ext(base)
	title = strings.TrimSuffix(base, dotExt)
	if title == "" {
		// filepath.Ext consumed the whole dotfile name.
		title = base
		dotExt = ""
	}
	if title == "" || title == "." {
		title = "unk"
	}
	ext = normalizeExt(dotExt)
	if ext == "" {
		ext = defaultExt
	}
	return title, ext
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
