package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	cfg "github.com/feichai0017/document-summarizer/config"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// GCSStorage stores objects in a Google Cloud Storage bucket.
type GCSStorage struct {
	client     *storage.Client
	bucketName string
	logger     logger.Logger
}

func (g *GCSStorage) Scheme() string { return "gs" }

func (g *GCSStorage) Bucket() string { return g.bucketName }

func (g *GCSStorage) Store(ctx context.Context, reader io.Reader, key, contentType string) (string, error) {
	w := g.client.Bucket(g.bucketName).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, reader); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	if err := w.Close(); err != nil {
		g.logger.Error("Failed to store file to GCS",
			logger.String("bucket", g.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucketName, key), nil
}

func (g *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return r, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucketName).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (g *GCSStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	it := g.client.Bucket(g.bucketName).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if !attrs.Updated.Before(threshold) {
			continue
		}
		if err := g.Delete(ctx, attrs.Name); err != nil {
			g.logger.Warn("Failed to delete expired object",
				logger.String("key", attrs.Name),
				logger.Error(err),
			)
			continue
		}
		g.logger.Info("Deleted expired object",
			logger.String("key", attrs.Name),
			logger.Time("lastModified", attrs.Updated),
		)
	}
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}

func NewGCSStorage(ctx context.Context, gcsConfig cfg.GCSConfig, log logger.Logger) (*GCSStorage, error) {
	var opts []option.ClientOption
	if gcsConfig.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(gcsConfig.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client:     client,
		bucketName: gcsConfig.BucketName,
		logger:     log.Named("gcs"),
	}, nil
}
