package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// LocalStorage writes uploads to disk. References it hands out are
// root-relative paths like /uploads/<key>.
type LocalStorage struct {
	root   string
	prefix string
	logger logger.Logger
}

func NewLocalStorage(root, prefix string, log logger.Logger) (*LocalStorage, error) {
	prefix = strings.Trim(prefix, "/")
	if err := os.MkdirAll(filepath.Join(root, prefix), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStorage{root: root, prefix: prefix, logger: log.Named("local")}, nil
}

func (l *LocalStorage) Scheme() string { return "" }

func (l *LocalStorage) Bucket() string { return "" }

func (l *LocalStorage) Store(ctx context.Context, reader io.Reader, key, contentType string) (string, error) {
	target, err := l.path(key)
	if err != nil {
		return "", err
	}
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(target)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return "/" + path.Join(l.prefix, key), nil
}

func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	entries, err := os.ReadDir(filepath.Join(l.root, l.prefix))
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() || !info.ModTime().Before(threshold) {
			continue
		}
		if err := l.Delete(ctx, e.Name()); err == nil {
			l.logger.Info("Deleted expired upload", logger.String("key", e.Name()))
		}
	}
	return nil
}

// KeyFor maps a reference handed out by Store back to its key.
func (l *LocalStorage) KeyFor(ref string) (string, bool) {
	dir, key := path.Split(ref)
	if strings.Trim(dir, "/") != l.prefix || key == "" {
		return "", false
	}
	return key, true
}

func (l *LocalStorage) path(key string) (string, error) {
	clean := filepath.Base(key)
	if clean != key || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid key: %q", key)
	}
	return filepath.Join(l.root, l.prefix, clean), nil
}
