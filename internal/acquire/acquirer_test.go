package acquire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/storage"
)

type memBackend struct {
	storage.Storage
	bucket  string
	objects map[string]string
}

func (m *memBackend) Scheme() string { return storage.SchemeS3 }
func (m *memBackend) Bucket() string { return m.bucket }
func (m *memBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newAcquirer(t *testing.T, maxBytes int64, backends ...storage.Storage) (*Acquirer, Config) {
	t.Helper()
	cfg := Config{TempDir: t.TempDir(), LegacyRoot: t.TempDir(), MaxBytes: maxBytes}
	return New(cfg, storage.NewRegistry(backends...), logger.NewTestLogger()), cfg
}

func TestAcquireHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/report.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4 body"))
		case "/download":
			w.Write([]byte("plain body"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, cfg := newAcquirer(t, 1024)
	ctx := context.Background()

	art, err := a.Acquire(ctx, &models.Document{ID: "doc/1", StorageReference: srv.URL + "/files/report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, ".pdf", filepath.Ext(art.Path))
	assert.Equal(t, cfg.TempDir, filepath.Dir(art.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(art.Path), "docsum_doc1_"))
	assert.Equal(t, "application/pdf", art.ContentType)
	assert.Equal(t, int64(13), art.Size)

	art.Release()
	assert.NoFileExists(t, art.Path)

	// no extension in the URL falls back to the title
	art, err = a.Acquire(ctx, &models.Document{ID: "d2", Title: "notes.txt", StorageReference: srv.URL + "/download"})
	require.NoError(t, err)
	assert.Equal(t, ".txt", filepath.Ext(art.Path))
	art.Release()

	_, err = a.Acquire(ctx, &models.Document{ID: "d3", StorageReference: srv.URL + "/missing.pdf"})
	assert.ErrorIs(t, err, models.ErrFetchFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestAcquireHTTPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a, _ := newAcquirer(t, 0)
	_, err := a.Acquire(context.Background(), &models.Document{ID: "x", StorageReference: url + "/a.pdf"})
	assert.ErrorIs(t, err, models.ErrFetchFailed)
}

func TestAcquireEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 100))
	}))
	defer srv.Close()

	a, cfg := newAcquirer(t, 10)
	_, err := a.Acquire(context.Background(), &models.Document{ID: "big", StorageReference: srv.URL + "/big.txt"})
	assert.ErrorIs(t, err, models.ErrFetchFailed)

	left, _ := filepath.Glob(filepath.Join(cfg.TempDir, "*"))
	assert.Empty(t, left)
}

func TestAcquireObjectStore(t *testing.T) {
	backend := &memBackend{bucket: "docs", objects: map[string]string{"a/b/memo.docx": "zip bytes"}}
	a, _ := newAcquirer(t, 0, backend)
	ctx := context.Background()

	art, err := a.Acquire(ctx, &models.Document{ID: "o1", StorageReference: "s3://docs/a/b/memo.docx"})
	require.NoError(t, err)
	defer art.Release()
	assert.Equal(t, ".docx", filepath.Ext(art.Path))
	data, _ := os.ReadFile(art.Path)
	assert.Equal(t, "zip bytes", string(data))

	_, err = a.Acquire(ctx, &models.Document{ID: "o2", StorageReference: "s3://docs/missing.pdf"})
	assert.ErrorIs(t, err, models.ErrFetchFailed)

	_, err = a.Acquire(ctx, &models.Document{ID: "o3", StorageReference: "gs://other/x.pdf"})
	assert.ErrorIs(t, err, models.ErrFetchFailed)

	_, err = a.Acquire(ctx, &models.Document{ID: "o4", StorageReference: "ftp://host/x.pdf"})
	assert.ErrorIs(t, err, models.ErrFetchFailed)
}

func TestAcquireLegacyPath(t *testing.T) {
	a, cfg := newAcquirer(t, 0)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.LegacyRoot, "uploads"), 0o755))
	target := filepath.Join(cfg.LegacyRoot, "uploads", "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("legacy"), 0o644))

	art, err := a.Acquire(context.Background(), &models.Document{ID: "l1", StorageReference: "/uploads/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, cfg.TempDir, filepath.Dir(art.Path))
	assert.Equal(t, ".txt", filepath.Ext(art.Path))
	data, _ := os.ReadFile(art.Path)
	assert.Equal(t, "legacy", string(data))

	// the original stays, only the copy goes
	art.Release()
	assert.NoFileExists(t, art.Path)
	assert.FileExists(t, target)

	_, err = a.Acquire(context.Background(), &models.Document{ID: "l2", StorageReference: "/uploads/gone.txt"})
	assert.ErrorIs(t, err, models.ErrLocalFileMissing)

	_, err = a.Acquire(context.Background(), &models.Document{ID: "l3", StorageReference: "/../../etc/passwd"})
	assert.ErrorIs(t, err, models.ErrLocalFileMissing)
}

func TestSweepTemp(t *testing.T) {
	a, cfg := newAcquirer(t, 0)
	old := filepath.Join(cfg.TempDir, "docsum_old_1_x.pdf")
	fresh := filepath.Join(cfg.TempDir, "docsum_new_2_y.pdf")
	other := filepath.Join(cfg.TempDir, "unrelated.pdf")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	n, err := a.SweepTemp(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestReleaseLogsFailedRemoval(t *testing.T) {
	log := logger.NewTestLogger()
	a := New(Config{TempDir: t.TempDir()}, storage.NewRegistry(), log)

	art, err := a.writeTemp(&models.Document{ID: "d1", Title: "a.txt"}, "", strings.NewReader("body"))
	require.NoError(t, err)

	// a second release of a file that is already gone stays quiet
	art.Release()
	art.Release()
	assert.False(t, log.HasMessage("DEBUG", "Failed to remove temp file"))

	// a non-empty directory in its place cannot be removed
	require.NoError(t, os.Mkdir(art.Path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(art.Path, "keep"), []byte("x"), 0o644))
	art.Release()
	assert.True(t, log.HasMessage("DEBUG", "Failed to remove temp file"))
	assert.DirExists(t, art.Path)
}
