package agent

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/document-summarizer/internal/agent/document"
	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/converters"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// Router picks the processor for a file and turns its output into an
// ExtractionResult.
//
// The file extension decides the family. The declared MIME type is only
// consulted when the file has no extension, and content sniffing only
// when neither is available.
type Router struct {
	processors map[models.FileFamily]document.Processor
	converter  converters.DocumentConverter
	logger     logger.Logger
}

func NewRouter(log logger.Logger, processors ...document.Processor) *Router {
	r := &Router{
		processors: make(map[models.FileFamily]document.Processor),
		converter:  converters.NewTextConverter(),
		logger:     log.Named("router"),
	}
	for _, p := range processors {
		if p != nil {
			r.processors[p.Family()] = p
		}
	}
	return r
}

// Resolve returns the family for path and the hint it was derived from.
func (r *Router) Resolve(path, declaredMIME string) (models.FileFamily, string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		family := models.FamilyForExtension(ext)
		if declared := extensionForMIME(declaredMIME); declared != "" && family != models.FamilyUnknown {
			if other := models.FamilyForExtension(declared); other != models.FamilyUnknown && other != family {
				r.logger.Warn("Declared MIME type disagrees with extension",
					logger.String("extension", ext),
					logger.String("mimeType", declaredMIME),
				)
			}
		}
		return family, ext
	}

	if declared := extensionForMIME(declaredMIME); declared != "" {
		return models.FamilyForExtension(declared), declaredMIME
	}

	// 最后根据内容判断
	if detected, err := mimetype.DetectFile(path); err == nil {
		return models.FamilyForExtension(detected.Extension()), detected.String()
	}
	return models.FamilyUnknown, ""
}

func extensionForMIME(value string) string {
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	m := mimetype.Lookup(mediaType)
	if m == nil {
		return ""
	}
	return m.Extension()
}

// Extract never panics on a bad file; every failure is carried in the result.
func (r *Router) Extract(ctx context.Context, path, declaredMIME string) models.ExtractionResult {
	family, hint := r.Resolve(path, declaredMIME)
	result := models.ExtractionResult{Family: family}

	processor, ok := r.processors[family]
	if family == models.FamilyUnknown || !ok {
		if hint == "" {
			hint = "unknown"
		}
		result.Outcome = models.OutcomeError
		result.Err = fmt.Errorf("%w: %s", models.ErrUnsupportedType, hint)
		return result
	}

	r.logger.Debug("Extracting text",
		logger.Family(string(family)),
		logger.String("hint", hint),
	)

	chunks, err := processor.Process(ctx, path)
	switch {
	case errors.Is(err, models.ErrScanned):
		result.Outcome = models.OutcomeScanned
		result.Err = err
	case err != nil:
		result.Outcome = models.OutcomeError
		result.Err = err
	default:
		result.Outcome = models.OutcomeText
		result.Text = r.converter.Convert(chunks)
	}
	return result
}

func (r *Router) Close() error {
	var errs []error
	for _, p := range r.processors {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
