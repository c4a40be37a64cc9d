package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

const (
	documentKeyPrefix = "document:"
	pendingIndexKey   = "documents:pending_since"
)

// RedisStore keeps each document in a hash and indexes pending documents
// in a sorted set scored by summaryUpdatedAt.
type RedisStore struct {
	client *redis.Client
	logger logger.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, logger: log.Named("store"), now: time.Now}
}

func documentKey(id string) string {
	return documentKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, doc *models.Document) error {
	stamp(doc, s.now(), true)
	created, err := s.client.HSetNX(ctx, documentKey(doc.ID), "id", doc.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return s.write(ctx, doc)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Document, error) {
	fields, err := s.client.HGetAll(ctx, documentKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}
	return decodeDocument(fields)
}

func (s *RedisStore) Save(ctx context.Context, doc *models.Document) error {
	n, err := s.client.Exists(ctx, documentKey(doc.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	stamp(doc, s.now(), false)
	return s.write(ctx, doc)
}

func (s *RedisStore) write(ctx context.Context, doc *models.Document) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, documentKey(doc.ID), encodeDocument(doc))
		if doc.SummaryStatus == models.StatusPending {
			pipe.ZAdd(ctx, pendingIndexKey, redis.Z{
				Score:  float64(doc.SummaryUpdatedAt.UnixMilli()),
				Member: doc.ID,
			})
		} else {
			pipe.ZRem(ctx, pendingIndexKey, doc.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *RedisStore) IncrementRetry(ctx context.Context, id string) (int, error) {
	exists, err := s.client.HExists(ctx, documentKey(id), "id").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry: %w", err)
	}
	if !exists {
		return 0, models.ErrNotFound
	}
	n, err := s.client.HIncrBy(ctx, documentKey(id), "retryCount", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, documentKey(id))
		pipe.ZRem(ctx, pendingIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *RedisStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]string, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, pendingIndexKey, by).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	return ids, nil
}

func encodeDocument(doc *models.Document) map[string]interface{} {
	return map[string]interface{}{
		"id":               doc.ID,
		"title":            doc.Title,
		"fileName":         doc.FileName,
		"fileSize":         doc.FileSize,
		"storageReference": doc.StorageReference,
		"declaredMimeType": doc.DeclaredMimeType,
		"summaryStatus":    string(doc.SummaryStatus),
		"summary":          doc.Summary,
		"summaryError":     doc.SummaryError,
		"failureKind":      string(doc.FailureKind),
		"retryCount":       doc.RetryCount,
		"summaryUpdatedAt": formatTime(doc.SummaryUpdatedAt),
		"createdAt":        formatTime(doc.CreatedAt),
		"updatedAt":        formatTime(doc.UpdatedAt),
	}
}

func decodeDocument(f map[string]string) (*models.Document, error) {
	doc := &models.Document{
		ID:               f["id"],
		Title:            f["title"],
		FileName:         f["fileName"],
		StorageReference: f["storageReference"],
		DeclaredMimeType: f["declaredMimeType"],
		SummaryStatus:    models.SummaryStatus(f["summaryStatus"]),
		Summary:          f["summary"],
		SummaryError:     f["summaryError"],
		FailureKind:      models.FailureKind(f["failureKind"]),
	}
	var errs []error
	var err error
	if v := f["fileSize"]; v != "" {
		doc.FileSize, err = strconv.ParseInt(v, 10, 64)
		errs = append(errs, err)
	}
	if v := f["retryCount"]; v != "" {
		doc.RetryCount, err = strconv.Atoi(v)
		errs = append(errs, err)
	}
	doc.SummaryUpdatedAt, err = parseTime(f["summaryUpdatedAt"])
	errs = append(errs, err)
	doc.CreatedAt, err = parseTime(f["createdAt"])
	errs = append(errs, err)
	doc.UpdatedAt, err = parseTime(f["updatedAt"])
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", doc.ID, err)
	}
	if doc.SummaryStatus == "" {
		doc.SummaryStatus = models.StatusNone
	}
	return doc, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
