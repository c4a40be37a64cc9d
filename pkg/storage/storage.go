package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/feichai0017/document-summarizer/config"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/storage/gcs"
	"github.com/feichai0017/document-summarizer/pkg/storage/local"
	"github.com/feichai0017/document-summarizer/pkg/storage/minio"
	"github.com/feichai0017/document-summarizer/pkg/storage/s3"
)

// Reference schemes understood by the acquirer.
const (
	SchemeS3    = "s3"
	SchemeMinio = "minio"
	SchemeGCS   = "gs"
)

// Storage 接口定义
type Storage interface {
	// Store writes the object and returns the reference to persist on the document.
	Store(ctx context.Context, reader io.Reader, key, contentType string) (string, error)
	// Get 获取文件
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除文件
	Delete(ctx context.Context, key string) error
	// CleanupBefore 清理过期文件
	CleanupBefore(ctx context.Context, threshold time.Time) error
	// Scheme and Bucket identify which references this backend serves.
	Scheme() string
	Bucket() string
}

// Reference is a parsed object reference such as s3://bucket/key.
type Reference struct {
	Scheme string
	Bucket string
	Key    string
}

func (r Reference) String() string {
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Bucket, r.Key)
}

// ParseReference parses an object-store reference. ok is false for anything
// that is not one of the object-store schemes.
func ParseReference(raw string) (Reference, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, false
	}
	switch u.Scheme {
	case SchemeS3, SchemeMinio, SchemeGCS:
	default:
		return Reference{}, false
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Reference{}, false
	}
	return Reference{Scheme: u.Scheme, Bucket: u.Host, Key: key}, true
}

// Registry resolves references to the backend that owns them.
type Registry struct {
	backends []Storage
}

func NewRegistry(backends ...Storage) *Registry {
	r := &Registry{}
	for _, b := range backends {
		if b != nil {
			r.backends = append(r.backends, b)
		}
	}
	return r
}

// Lookup finds the backend for scheme and bucket.
func (r *Registry) Lookup(scheme, bucket string) (Storage, bool) {
	if r == nil {
		return nil, false
	}
	for _, b := range r.backends {
		if b.Scheme() == scheme && b.Bucket() == bucket {
			return b, true
		}
	}
	return nil, false
}

// Backends returns every registered backend.
func (r *Registry) Backends() []Storage {
	if r == nil {
		return nil
	}
	return r.backends
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, storageType string, cfg config.StorageConfig, legacyRoot string, log logger.Logger) (Storage, error) {
	switch storageType {
	case config.StorageTypeLocal:
		return local.NewLocalStorage(legacyRoot, cfg.Local.Prefix, log)
	case config.StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case config.StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	case config.StorageTypeGCS:
		return gcs.NewGCSStorage(ctx, cfg.GCS, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// NewRegistryFromConfig builds the upload backend plus every other backend
// that has enough configuration to be read from.
func NewRegistryFromConfig(ctx context.Context, cfg config.StorageConfig, legacyRoot string, log logger.Logger) (Storage, *Registry, error) {
	primary, err := NewStorage(ctx, cfg.Type, cfg, legacyRoot, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
	}

	backends := []Storage{primary}
	optional := map[string]bool{
		config.StorageTypeS3:    cfg.S3.Enabled(),
		config.StorageTypeMinio: cfg.Minio.Enabled(),
		config.StorageTypeGCS:   cfg.GCS.Enabled(),
	}
	var errs []error
	for typ, enabled := range optional {
		if !enabled || typ == cfg.Type {
			continue
		}
		b, err := NewStorage(ctx, typ, cfg, legacyRoot, log)
		if err != nil {
			// a broken read-only backend only affects documents stored there
			log.Warn("Skipping storage backend", logger.String("type", typ), logger.Error(err))
			errs = append(errs, err)
			continue
		}
		backends = append(backends, b)
	}
	if len(errs) > 0 {
		log.Warn("Some storage backends are unavailable", logger.Error(errors.Join(errs...)))
	}

	return primary, NewRegistry(backends...), nil
}
