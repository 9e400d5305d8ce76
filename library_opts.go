package shelf

import (
	"errors"
	"log/slog"

	"github.com/meigma/shelf/extract"
)

// Option configures a Library.
type Option func(*Library) error

// WithLogger sets the logger for ingest and removal diagnostics.
// Without it, logging is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) error {
		l.logger = logger
		return nil
	}
}

// WithExtractor registers or replaces the metadata extractor for an
// extension. The extension is normalized (lowercased, leading dot
// stripped) before registration.
func WithExtractor(ext string, x extract.Extractor) Option {
	return func(l *Library) error {
		if x == nil {
			return errors.New("shelf: nil extractor")
		}
		ext = normalizeExt(ext)
		if ext == "" {
			return errors.New("shelf: empty extractor extension")
		}
		l.extractors[ext] = x
		return nil
	}
}
