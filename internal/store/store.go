// Package store persists document records and their summarization state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/feichai0017/document-summarizer/internal/models"
)

var ErrAlreadyExists = errors.New("document already exists")

// Store is the status store. Implementations return models.ErrNotFound
// for unknown ids.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	// Save overwrites an existing record.
	Save(ctx context.Context, doc *models.Document) error
	// IncrementRetry bumps retryCount atomically and returns the new value.
	IncrementRetry(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	// ListStalePending returns ids whose status is pending and whose
	// summaryUpdatedAt is before the cutoff, oldest first.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]string, error)
}

func stamp(doc *models.Document, now time.Time, creating bool) {
	if creating && doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.SummaryStatus == "" {
		doc.SummaryStatus = models.StatusNone
	}
}
