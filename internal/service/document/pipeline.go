package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// User-facing failure messages.
const (
	msgNoReference   = "No file URL found"
	msgLocalMissing  = "Local file not found"
	msgScanned       = "Scanned PDF detected. OCR is limited for full PDFs in this environment."
	msgInsufficient  = "Insufficient text content found to summarize."
	msgNotConfigured = "AI service is not configured."
	msgInternal      = "Internal error while summarizing document"
)

const finishTimeout = 10 * time.Second

// outcome is the terminal result of one run.
type outcome struct {
	summary   string
	message   string
	kind      models.FailureKind
	increment bool
}

func (o outcome) ok() bool { return o.kind == models.FailureNone }

func completed(summary string) outcome {
	return outcome{summary: summary}
}

func failed(kind models.FailureKind, message string) outcome {
	return outcome{kind: kind, message: message, increment: kind == models.FailureTransient}
}

// Process runs the pipeline for one document. Every failure ends as a
// status write on the document; the returned error only reports that the
// status itself could not be read or written.
func (s *DocumentService) Process(ctx context.Context, id string) (err error) {
	release, ok, err := s.locker.TryAcquire(ctx, id, s.config.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		s.logger.Debug("Run already in flight", logger.DocumentID(id))
		return nil
	}
	defer release()

	// 服务关闭中, 保持 pending 交给 sweep
	if ctx.Err() != nil {
		s.logger.Info("Run cancelled before start, leaving document pending", logger.DocumentID(id))
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Run panicked",
				logger.DocumentID(id),
				logger.String("panic", fmt.Sprint(r)),
				logger.Stack(),
			)
			err = s.finish(ctx, id, failed(models.FailureTransient, msgInternal))
		}
	}()

	doc, err := s.store.Get(runCtx, id)
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Debug("Document gone, nothing to do", logger.DocumentID(id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	// 检查重试次数
	if doc.SummaryStatus == models.StatusFailed && doc.RetryCount >= s.config.RetryBudget {
		s.logger.Info("Skipping run, retry budget exhausted",
			logger.DocumentID(id),
			logger.Int("retryCount", doc.RetryCount),
		)
		return nil
	}

	s.logger.Info("Processing document", logger.DocumentID(id))
	start := time.Now()
	result := s.run(runCtx, doc)

	// A cancelled caller is not a failure of the document. Stage deadlines
	// only end their own context, so ctx.Err is set by shutdown alone.
	if !result.ok() && ctx.Err() != nil {
		s.logger.Warn("Run interrupted, leaving document pending",
			logger.DocumentID(id),
			logger.String("reason", result.message),
		)
		return nil
	}

	if result.ok() {
		s.logger.Info("Summary completed",
			logger.DocumentID(id),
			logger.Duration("elapsed", time.Since(start)),
		)
	} else {
		s.logger.Warn("Summary failed",
			logger.DocumentID(id),
			logger.String("reason", result.message),
			logger.String("kind", string(result.kind)),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
	return s.finish(ctx, id, result)
}

func (s *DocumentService) run(ctx context.Context, doc *models.Document) outcome {
	if strings.TrimSpace(doc.StorageReference) == "" {
		return failed(models.FailureConfiguration, msgNoReference)
	}

	if err := s.markPending(ctx, doc); err != nil {
		return failed(models.FailureTransient, err.Error())
	}

	// 获取文件
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	artifact, err := s.acquirer.Acquire(fetchCtx, doc)
	cancel()
	switch {
	case errors.Is(err, models.ErrLocalFileMissing):
		return failed(models.FailureConfiguration, msgLocalMissing)
	case err != nil:
		return failed(models.FailureTransient, timeoutMessage("Fetch", err))
	}

	// 提取文本
	extractCtx, cancel := context.WithTimeout(ctx, s.config.ExtractTimeout)
	extraction := s.extractor.Extract(extractCtx, artifact.Path, contentType(doc, artifact.ContentType))
	cancel()
	artifact.Release()

	if extraction.Err != nil {
		s.logger.Debug("Extraction did not produce text",
			logger.DocumentID(doc.ID),
			logger.Error(extraction.Err),
		)
	}
	switch {
	case extraction.Outcome == models.OutcomeScanned:
		return failed(models.FailureContent, msgScanned)
	case extraction.Outcome == models.OutcomeError && errors.Is(extraction.Err, models.ErrEncryptedPDF):
		return failed(models.FailureContent, "Extraction failed: "+models.ErrEncryptedPDF.Error())
	case extraction.Outcome == models.OutcomeError:
		return failed(models.FailureTransient, "Extraction failed: "+extractionMessage(extraction.Err))
	}

	text := strings.TrimSpace(extraction.Text)
	if utf8.RuneCountInString(text) < s.config.MinTextLength {
		return failed(models.FailureContent, msgInsufficient)
	}

	if err := s.markPending(ctx, doc); err != nil {
		return failed(models.FailureTransient, err.Error())
	}

	// 生成摘要
	sumCtx, cancel := context.WithTimeout(ctx, s.config.SummarizeTimeout)
	summary, err := s.summarizer.Summarize(sumCtx, text)
	cancel()
	switch {
	case errors.Is(err, models.ErrInsufficientInput):
		return failed(models.FailureContent, msgInsufficient)
	case errors.Is(err, models.ErrNotConfigured):
		return failed(models.FailureConfiguration, msgNotConfigured)
	case err != nil:
		return failed(models.FailureTransient, timeoutMessage("Summarization", err))
	}

	return completed(summary)
}

// markPending re-affirms the pending status and refreshes its timestamp.
func (s *DocumentService) markPending(ctx context.Context, doc *models.Document) error {
	doc.SummaryStatus = models.StatusPending
	doc.SummaryUpdatedAt = s.now()
	if err := s.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// finish writes the terminal status on a fresh copy of the record.
func (s *DocumentService) finish(ctx context.Context, id string, result outcome) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	doc, err := s.store.Get(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reload document: %w", err)
	}

	doc.SummaryUpdatedAt = s.now()
	if result.ok() {
		doc.SummaryStatus = models.StatusCompleted
		doc.Summary = result.summary
		doc.SummaryError = ""
		doc.FailureKind = models.FailureNone
		doc.RetryCount = 0
	} else {
		doc.SummaryStatus = models.StatusFailed
		doc.Summary = ""
		doc.SummaryError = result.message
		doc.FailureKind = result.kind
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	if !result.ok() && result.increment {
		if _, err := s.store.IncrementRetry(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to increment retry: %w", err)
		}
	}
	return nil
}

func contentType(doc *models.Document, fetched string) string {
	if doc.DeclaredMimeType != "" {
		return doc.DeclaredMimeType
	}
	return fetched
}

// extractionMessage keeps engine internals out of the stored error.
func extractionMessage(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, models.ErrOCRFailed):
		return models.ErrOCRFailed.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}

func timeoutMessage(stage string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return stage + " timed out"
	}
	return err.Error()
}
