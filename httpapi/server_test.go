package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/shelf"
	"github.com/meigma/shelf/httpapi"
	"github.com/meigma/shelf/internal/epubtest"
	"github.com/meigma/shelf/registry"
)

type failingAuth struct{}

func (failingAuth) Authenticate(*http.Request) (int64, error) {
	return 0, errors.New("bad token")
}

func newTestServer(t *testing.T, auth httpapi.Authenticator) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	reg, err := registry.Open(ctx, filepath.Join(t.TempDir(), "shelf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	require.NoError(t, reg.EnsureUser(ctx, 1))

	library, err := shelf.New(shelf.Config{StorageRoot: t.TempDir()}, reg)
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.New(library, auth).Handler())
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func doJSON(t *testing.T, method, url string, body io.Reader, contentType string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func upload(t *testing.T, srv *httptest.Server, filename string, content []byte) envelope {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	code, env := doJSON(t, http.MethodPut, srv.URL+"/book", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", env.Status)
	return env
}

func TestUploadListDownloadRoundtrip(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, httpapi.StaticAuthenticator(1))

	jpegHeader := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	book := epubtest.Build(epubtest.Book{
		Title: "Alpha", Creator: "Bob",
		Cover: jpegHeader, CoverMime: "image/jpeg", CoverProperty: true,
	})

	env := upload(t, srv, "book.epub", book)
	var entry struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, "book", entry.Title)
	require.NotZero(t, entry.ID)

	// List shows the new entry.
	code, env := doJSON(t, http.MethodGet, srv.URL+"/book", nil, "")
	require.Equal(t, http.StatusOK, code)
	var entries []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 1)

	// Describe includes extracted metadata.
	code, env = doJSON(t, http.MethodGet, srv.URL+"/book/1", nil, "")
	require.Equal(t, http.StatusOK, code)
	var d struct {
		FileType string `json:"file_type"`
		Metadata *struct {
			Title     string `json:"title"`
			Creator   string `json:"creator"`
			CoverMime string `json:"cover_mime"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, "epub", d.FileType)
	require.NotNil(t, d.Metadata)
	assert.Equal(t, "Alpha", d.Metadata.Title)

	// Download frames the original filename and returns the exact bytes.
	resp, err := http.Get(srv.URL + "/book/1/file")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "book.epub")
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, book, got)

	// Cover is served with its declared mime type.
	resp, err = http.Get(srv.URL + "/book/1/cover")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	// Remove, then the entry is gone.
	code, env = doJSON(t, http.MethodDelete, srv.URL+"/book/1", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Status)

	code, env = doJSON(t, http.MethodGet, srv.URL+"/book/1", nil, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)
	assert.NotEmpty(t, env.Error)
}

func TestDownloadFilenameEncoding(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, httpapi.StaticAuthenticator(1))
	upload(t, srv, "Привет.epub", []byte("non-ascii title"))

	resp, err := http.Get(srv.URL + "/book/1/file")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Non-ASCII filenames need RFC 6266/2231 parameter encoding, not
	// Go string quoting.
	want := mime.FormatMediaType("attachment", map[string]string{"filename": "Привет.epub"})
	assert.Equal(t, want, resp.Header.Get("Content-Disposition"))
}

func TestCoverMissing(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, httpapi.StaticAuthenticator(1))
	upload(t, srv, "plain.epub", epubtest.Build(epubtest.Book{Title: "NoCover"}))

	code, env := doJSON(t, http.MethodGet, srv.URL+"/book/1/cover", nil, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, failingAuth{})

	code, env := doJSON(t, http.MethodGet, srv.URL+"/book", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", env.Status)
}

func TestMalformedEntryID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, httpapi.StaticAuthenticator(1))

	code, env := doJSON(t, http.MethodGet, srv.URL+"/book/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)
}

func TestUploadRequiresFileField(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, httpapi.StaticAuthenticator(1))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	code, env := doJSON(t, http.MethodPut, srv.URL+"/book", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)
}
