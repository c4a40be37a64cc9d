// Package acquire turns a document's storage reference into a local file.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/storage"
)

// TempPrefix starts the name of every file the acquirer creates.
const TempPrefix = "docsum_"

var errTooLarge = errors.New("file exceeds size limit")

type Config struct {
	TempDir    string
	LegacyRoot string
	MaxBytes   int64
	UserAgent  string
}

// Artifact is a local copy of a document. Release it when done.
type Artifact struct {
	Path        string
	Size        int64
	ContentType string

	logger logger.Logger
}

// Release deletes the temp copy. Safe to call more than once.
func (a *Artifact) Release() {
	if a == nil || a.Path == "" {
		return
	}
	err := os.Remove(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) && a.logger != nil {
		// SweepTemp picks it up later
		a.logger.Debug("Failed to remove temp file",
			logger.String("path", a.Path),
			logger.Error(err),
		)
	}
}

type Acquirer struct {
	http     *resty.Client
	registry *storage.Registry
	cfg      Config
	logger   logger.Logger
}

func New(cfg Config, registry *storage.Registry, log logger.Logger) *Acquirer {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "document-summarizer/1.0"
	}
	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", cfg.UserAgent)

	return &Acquirer{
		http:     client,
		registry: registry,
		cfg:      cfg,
		logger:   log.Named("acquire"),
	}
}

// Acquire fetches the document. Network and object-store failures wrap
// models.ErrFetchFailed; a missing legacy file is models.ErrLocalFileMissing.
func (a *Acquirer) Acquire(ctx context.Context, doc *models.Document) (*Artifact, error) {
	ref := strings.TrimSpace(doc.StorageReference)

	switch {
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return a.fetchHTTP(ctx, doc, ref)
	case strings.Contains(ref, "://"):
		parsed, ok := storage.ParseReference(ref)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported reference %q", models.ErrFetchFailed, ref)
		}
		return a.fetchObject(ctx, doc, parsed)
	default:
		return a.copyLegacy(doc, ref)
	}
}

func (a *Acquirer) fetchHTTP(ctx context.Context, doc *models.Document, ref string) (*Artifact, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	resp, err := a.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", models.ErrFetchFailed, u.Host, resp.StatusCode())
	}

	artifact, err := a.writeTemp(doc, path.Ext(u.Path), body)
	if err != nil {
		return nil, err
	}
	artifact.ContentType = resp.Header().Get("Content-Type")
	return artifact, nil
}

func (a *Acquirer) fetchObject(ctx context.Context, doc *models.Document, ref storage.Reference) (*Artifact, error) {
	backend, ok := a.registry.Lookup(ref.Scheme, ref.Bucket)
	if !ok {
		return nil, fmt.Errorf("%w: no storage backend for %s://%s", models.ErrFetchFailed, ref.Scheme, ref.Bucket)
	}

	rc, err := backend.Get(ctx, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}
	defer rc.Close()

	return a.writeTemp(doc, path.Ext(ref.Key), rc)
}

// copyLegacy resolves a root-relative path such as /uploads/a.pdf and copies
// it to the temp location.
func (a *Acquirer) copyLegacy(doc *models.Document, ref string) (*Artifact, error) {
	rel := filepath.FromSlash(strings.TrimLeft(ref, "/"))
	if rel == "" {
		return nil, fmt.Errorf("%w: empty reference", models.ErrLocalFileMissing)
	}
	root, err := filepath.Abs(a.cfg.LegacyRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}
	full := filepath.Join(root, rel)
	if r, err := filepath.Rel(root, full); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: reference escapes upload root", models.ErrLocalFileMissing)
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", models.ErrLocalFileMissing, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}
	defer f.Close()

	return a.writeTemp(doc, filepath.Ext(full), f)
}

func (a *Acquirer) writeTemp(doc *models.Document, ext string, src io.Reader) (*Artifact, error) {
	if ext == "" {
		ext = filepath.Ext(doc.NameHint())
	}
	pattern := fmt.Sprintf("%s%s_%d_*%s", TempPrefix, safeName(doc.ID), time.Now().UnixNano(), safeExt(ext))

	f, err := os.CreateTemp(a.cfg.TempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}
	artifact := &Artifact{Path: f.Name(), logger: a.logger}

	n, err := copyLimited(f, src, a.cfg.MaxBytes)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		artifact.Release()
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}
	artifact.Size = n

	a.logger.Debug("Fetched document",
		logger.DocumentID(doc.ID),
		logger.Int64("bytes", n),
	)
	return artifact, nil
}

func copyLimited(dst io.Writer, src io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, errTooLarge
	}
	return n, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func safeName(id string) string {
	s := unsafeChars.ReplaceAllString(id, "")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

func safeExt(ext string) string {
	if ext == "" {
		return ""
	}
	clean := unsafeChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if clean == "" || len(clean) > 10 {
		return ""
	}
	return "." + strings.ToLower(clean)
}

// SweepTemp removes acquirer temp files older than maxAge and reports how
// many were deleted.
func (a *Acquirer) SweepTemp(maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(a.cfg.TempDir, TempPrefix+"*"))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	if removed > 0 {
		a.logger.Info("Removed stale temp files", logger.Int("count", removed))
	}
	return removed, nil
}
