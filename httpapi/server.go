// Package httpapi exposes the shelf catalog over HTTP.
//
// Responses use a uniform JSON envelope: {"status":"ok","data":...} on
// success and {"status":"error","error":"..."} on failure. Identity is
// delegated to an Authenticator; the owner id carried in a request body
// or query string is never trusted.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/meigma/shelf"
)

// Authenticator resolves the verified owner identity for a request.
// Implementations typically verify a bearer token; the catalog only ever
// sees the resulting owner id.
type Authenticator interface {
	Authenticate(r *http.Request) (int64, error)
}

// StaticAuthenticator authenticates every request as one fixed owner.
// Suitable for single-user deployments and tests.
type StaticAuthenticator int64

// Authenticate implements Authenticator.
func (a StaticAuthenticator) Authenticate(*http.Request) (int64, error) {
	return int64(a), nil
}

const defaultMaxUploadBytes = 256 << 20 // 256 MB

// Server adapts a shelf.Library to HTTP handlers.
type Server struct {
	library        *shelf.Library
	auth           Authenticator
	logger         *slog.Logger
	maxUploadBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxUploadBytes bounds the accepted upload body size.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		s.maxUploadBytes = n
	}
}

// New creates a Server over library with auth resolving request identity.
func New(library *shelf.Library, auth Authenticator, opts ...Option) *Server {
	s := &Server{
		library:        library,
		auth:           auth,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /book", s.handleUpload)
	mux.HandleFunc("GET /book", s.handleList)
	mux.HandleFunc("GET /book/{id}", s.handleDescribe)
	mux.HandleFunc("GET /book/{id}/file", s.handleFile)
	mux.HandleFunc("GET /book/{id}/cover", s.handleCover)
	mux.HandleFunc("DELETE /book/{id}", s.handleRemove)
	return mux
}

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

type entryJSON struct {
	ID          int64  `json:"id"`
	OwnerID     int64  `json:"owner_id"`
	Title       string `json:"title"`
	ContentHash string `json:"content_hash"`
	FileTypeID  int64  `json:"file_type_id"`
}

type metadataJSON struct {
	Title     string `json:"title"`
	Creator   string `json:"creator"`
	CoverMime string `json:"cover_mime,omitempty"`
}

type descriptorJSON struct {
	Entry    entryJSON     `json:"entry"`
	FileType string        `json:"file_type"`
	Metadata *metadataJSON `json:"metadata,omitempty"`
}

func toEntryJSON(e shelf.Entry) entryJSON {
	return entryJSON{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Title:       e.Title,
		ContentHash: e.ContentHash,
		FileTypeID:  e.FileTypeID,
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, `missing "file" form field`)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	entry, err := s.library.Ingest(r.Context(), owner, header.Filename, content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeOK(w, toEntryJSON(entry))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	entries, err := s.library.List(r.Context(), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	s.writeOK(w, out)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownerAndID(w, r)
	if !ok {
		return
	}
	d, err := s.library.Describe(r.Context(), id, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := descriptorJSON{
		Entry:    toEntryJSON(d.Entry),
		FileType: d.FileType.Name,
	}
	if d.Metadata != nil {
		out.Metadata = &metadataJSON{
			Title:     d.Metadata.Title,
			Creator:   d.Metadata.Creator,
			CoverMime: d.Metadata.CoverMime,
		}
	}
	s.writeOK(w, out)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownerAndID(w, r)
	if !ok {
		return
	}
	path, filename, err := s.library.FetchBlob(r.Context(), id, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownerAndID(w, r)
	if !ok {
		return
	}
	cover, err := s.library.FetchCover(r.Context(), id, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", cover.Mime)
	http.ServeFile(w, r, cover.Path)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.ownerAndID(w, r)
	if !ok {
		return
	}
	n, err := s.library.Remove(r.Context(), id, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n == 0 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeOK(w, map[string]int64{"deleted": n})
}

func (s *Server) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	owner, err := s.auth.Authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return owner, true
}

func (s *Server) ownerAndID(w http.ResponseWriter, r *http.Request) (owner, id int64, ok bool) {
	owner, ok = s.owner(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed entry id")
		return 0, 0, false
	}
	return owner, id, true
}

// fail translates core errors to HTTP statuses: missing or foreign
// entries and absent covers map to 404, everything else to 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shelf.ErrNotFound), errors.Is(err, shelf.ErrNoCover):
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		s.log().Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope{Status: "ok", Data: data}); err != nil {
		s.log().Error("writing response failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{Status: "error", Error: msg}); err != nil {
		s.log().Error("writing response failed", slog.Any("error", err))
	}
}
