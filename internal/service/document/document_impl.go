package document

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/internal/store"
	"github.com/feichai0017/document-summarizer/internal/utils/validator"
	"github.com/feichai0017/document-summarizer/pkg/lock"
	"github.com/feichai0017/document-summarizer/pkg/logger"
	"github.com/feichai0017/document-summarizer/pkg/storage"
)

type ServiceConfig struct {
	StaleAfter       time.Duration
	RetryBudget      int
	MinTextLength    int
	FetchTimeout     time.Duration
	ExtractTimeout   time.Duration
	SummarizeTimeout time.Duration
	RunTimeout       time.Duration
	LockTTL          time.Duration
	TempMaxAge       time.Duration
	UploadRetention  time.Duration
	SweepBatch       int
	MaxUploadFiles   int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		StaleAfter:       5 * time.Minute,
		RetryBudget:      1,
		MinTextLength:    50,
		FetchTimeout:     2 * time.Minute,
		ExtractTimeout:   3 * time.Minute,
		SummarizeTimeout: 2 * time.Minute,
		RunTimeout:       8 * time.Minute,
		LockTTL:          9 * time.Minute,
		TempMaxAge:       time.Hour,
		SweepBatch:       100,
		MaxUploadFiles:   10,
	}
}

// Deps are the collaborators of the service. Uploads and Validator are
// only needed for the upload surface.
type Deps struct {
	Store      store.Store
	Locker     lock.Locker
	Acquirer   Acquirer
	Extractor  Extractor
	Summarizer Summarizer
	Uploads    storage.Storage
	Registry   *storage.Registry
	Validator  *validator.DocumentValidator
}

type DocumentService struct {
	store      store.Store
	locker     lock.Locker
	acquirer   Acquirer
	extractor  Extractor
	summarizer Summarizer
	uploads    storage.Storage
	registry   *storage.Registry
	validator  *validator.DocumentValidator
	logger     logger.Logger
	config     ServiceConfig
	now        func() time.Time

	mu         sync.RWMutex
	dispatcher Dispatcher
}

func NewService(deps Deps, cfg ServiceConfig, log logger.Logger) *DocumentService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.RunTimeout + time.Minute
	}
	return &DocumentService{
		store:      deps.Store,
		locker:     deps.Locker,
		acquirer:   deps.Acquirer,
		extractor:  deps.Extractor,
		summarizer: deps.Summarizer,
		uploads:    deps.Uploads,
		registry:   deps.Registry,
		validator:  deps.Validator,
		logger:     log.Named("documents"),
		config:     cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetDispatcher wires the scheduler. The in-process pool needs the service
// to exist first, hence the setter.
func (s *DocumentService) SetDispatcher(d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

// TriggerProcessing schedules a run and returns immediately. A failed
// dispatch leaves the document pending for the stuck sweep.
func (s *DocumentService) TriggerProcessing(ctx context.Context, id string) {
	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()

	if d == nil {
		s.logger.Warn("No dispatcher configured, run not scheduled", logger.DocumentID(id))
		return
	}
	if err := d.Dispatch(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Error("Failed to dispatch run",
			logger.DocumentID(id),
			logger.Error(err),
		)
	}
}

// Upload 批量上传文件
func (s *DocumentService) Upload(ctx context.Context, files []*multipart.FileHeader, title string) ([]*models.Document, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file uploaded", models.ErrInvalidFile)
	}
	if s.config.MaxUploadFiles > 0 && len(files) > s.config.MaxUploadFiles {
		return nil, fmt.Errorf("%w: at most %d files per upload", models.ErrInvalidFile, s.config.MaxUploadFiles)
	}
	if s.uploads == nil || s.validator == nil {
		return nil, errors.New("upload storage not configured")
	}

	// 验证文件
	results, err := s.validator.ValidateFiles(files)
	if err != nil {
		return nil, fmt.Errorf("failed to validate files: %w", err)
	}
	for _, r := range results {
		if !r.IsValid {
			return nil, fmt.Errorf("%w: %s: %s", models.ErrInvalidFile, r.FileInfo.Filename, r.Message())
		}
	}

	docs := make([]*models.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, header := range files {
		g.Go(func() error {
			doc, err := s.storeUpload(gctx, header, results[i].FileInfo, uploadTitle(title, header.Filename, len(files)))
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// 已创建的文档照常处理
		created := compact(docs)
		for _, doc := range created {
			s.TriggerProcessing(ctx, doc.ID)
		}
		return created, err
	}

	for _, doc := range docs {
		s.TriggerProcessing(ctx, doc.ID)
	}
	return docs, nil
}

func (s *DocumentService) storeUpload(ctx context.Context, header *multipart.FileHeader, info validator.FileInfo, title string) (*models.Document, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	id := uuid.New().String()
	key := id + info.Extension

	// 存储文件
	ref, err := s.uploads.Store(ctx, file, key, info.MimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	now := s.now()
	doc := &models.Document{
		ID:               id,
		Title:            title,
		FileName:         header.Filename,
		FileSize:         header.Size,
		StorageReference: ref,
		DeclaredMimeType: info.MimeType,
		SummaryStatus:    models.StatusPending,
		SummaryUpdatedAt: now,
		CreatedAt:        now,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		if delErr := s.uploads.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", logger.Reference(ref), logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("Document uploaded",
		logger.DocumentID(id),
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)
	return doc, nil
}

// uploadTitle mirrors how titles are named in a multi-file upload.
func uploadTitle(title, filename string, count int) string {
	title = strings.TrimSpace(title)
	switch {
	case title != "" && count > 1:
		return title + " - " + filename
	case title != "":
		return title
	default:
		return strings.TrimSuffix(filename, filepath.Ext(filename))
	}
}

func compact(docs []*models.Document) []*models.Document {
	out := docs[:0:0]
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (s *DocumentService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.eligible(doc) {
		return doc, nil
	}
	return s.retrigger(ctx, doc)
}

func (s *DocumentService) GetStatus(ctx context.Context, id string) (*models.SummaryState, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.State(), nil
}

// eligible decides whether a read should schedule another run.
func (s *DocumentService) eligible(doc *models.Document) bool {
	switch doc.SummaryStatus {
	case models.StatusNone, "":
		return true
	case models.StatusPending:
		return s.now().Sub(doc.SummaryUpdatedAt) > s.config.StaleAfter
	case models.StatusFailed:
		retriable := doc.FailureKind == models.FailureTransient || doc.FailureKind == models.FailureNone
		return retriable && doc.RetryCount <= s.config.RetryBudget
	default:
		return false
	}
}

// retrigger resets the document to pending under the lock and dispatches.
// If a run holds the lock the document is returned unchanged.
func (s *DocumentService) retrigger(ctx context.Context, doc *models.Document) (*models.Document, error) {
	release, ok, err := s.locker.TryAcquire(ctx, doc.ID, s.config.LockTTL)
	if err != nil {
		s.logger.Warn("Skipping re-trigger, lock unavailable", logger.DocumentID(doc.ID), logger.Error(err))
		return doc, nil
	}
	if !ok {
		return doc, nil
	}

	// 重新读取, the run that just released may have finished it
	fresh, err := s.store.Get(ctx, doc.ID)
	if err != nil {
		release()
		return nil, err
	}
	if !s.eligible(fresh) {
		release()
		return fresh, nil
	}

	previous := fresh.SummaryStatus
	fresh.SummaryStatus = models.StatusPending
	fresh.Summary = ""
	fresh.SummaryUpdatedAt = s.now()
	err = s.store.Save(ctx, fresh)
	release()
	if err != nil {
		return nil, fmt.Errorf("failed to reset document: %w", err)
	}

	s.logger.Info("Re-triggering summary",
		logger.DocumentID(fresh.ID),
		logger.Status(string(previous)),
		logger.Int("retryCount", fresh.RetryCount),
	)
	s.TriggerProcessing(ctx, fresh.ID)
	return fresh, nil
}

// Regenerate resets the summary and starts a fresh run with a full retry
// budget. It fails with models.ErrRunInFlight while a run holds the document.
func (s *DocumentService) Regenerate(ctx context.Context, id string) (*models.Document, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}

	release, ok, err := s.locker.TryAcquire(ctx, id, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, models.ErrRunInFlight
	}

	doc, err := s.store.Get(ctx, id)
	if err != nil {
		release()
		return nil, err
	}
	doc.SummaryStatus = models.StatusPending
	doc.Summary = ""
	doc.SummaryError = ""
	doc.FailureKind = models.FailureNone
	doc.RetryCount = 0
	doc.SummaryUpdatedAt = s.now()
	err = s.store.Save(ctx, doc)
	release()
	if err != nil {
		return nil, fmt.Errorf("failed to reset document: %w", err)
	}

	s.logger.Info("Summary regeneration requested", logger.DocumentID(id))
	s.TriggerProcessing(ctx, id)
	return doc, nil
}

// Delete removes the record and, best effort, the stored bytes.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	release, ok, err := s.locker.TryAcquire(ctx, id, s.config.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return models.ErrRunInFlight
	}
	defer release()

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.deleteObject(ctx, doc.StorageReference); err != nil {
		s.logger.Warn("Failed to delete stored file",
			logger.DocumentID(id),
			logger.Reference(doc.StorageReference),
			logger.Error(err),
		)
	}
	s.logger.Info("Document deleted", logger.DocumentID(id))
	return nil
}

type keyResolver interface {
	KeyFor(ref string) (string, bool)
}

func (s *DocumentService) deleteObject(ctx context.Context, ref string) error {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return nil
	}
	if parsed, ok := storage.ParseReference(ref); ok {
		backend, found := s.registry.Lookup(parsed.Scheme, parsed.Bucket)
		if !found {
			return fmt.Errorf("no storage backend for %s", ref)
		}
		return backend.Delete(ctx, parsed.Key)
	}
	if r, ok := s.uploads.(keyResolver); ok {
		if key, ok := r.KeyFor(path.Clean(ref)); ok {
			return s.uploads.Delete(ctx, key)
		}
	}
	return nil
}
