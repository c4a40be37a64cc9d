package document

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/feichai0017/document-summarizer/internal/acquire"
	"github.com/feichai0017/document-summarizer/internal/models"
)

type DocumentProcessor interface {
	// Upload stores the files, creates one pending document per file and
	// triggers their runs.
	Upload(ctx context.Context, files []*multipart.FileHeader, title string) ([]*models.Document, error)
	// GetDocument returns the document, re-triggering it when it is missing
	// a summary, stuck or failed transiently.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetStatus(ctx context.Context, id string) (*models.SummaryState, error)
	Regenerate(ctx context.Context, id string) (*models.Document, error)
	Delete(ctx context.Context, id string) error
	TriggerProcessing(ctx context.Context, id string)
	Process(ctx context.Context, id string) error
	SweepStuck(ctx context.Context) (int, error)
	SweepTempFiles(ctx context.Context) (int, error)
}

// Acquirer fetches a document's bytes to a local file.
type Acquirer interface {
	Acquire(ctx context.Context, doc *models.Document) (*acquire.Artifact, error)
	SweepTemp(maxAge time.Duration) (int, error)
}

type Extractor interface {
	Extract(ctx context.Context, path, declaredMIME string) models.ExtractionResult
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Dispatcher schedules a run in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}
