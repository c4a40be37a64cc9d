package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

const (
	DefaultScannedThreshold = 100
	defaultMaxWorkers       = 4
)

type Processor struct {
	logger           logger.Logger
	scannedThreshold int
	maxWorkers       int
}

func NewProcessor(log logger.Logger, scannedThreshold int) *Processor {
	if scannedThreshold <= 0 {
		scannedThreshold = DefaultScannedThreshold
	}
	return &Processor{
		logger:           log.Named("pdf"),
		scannedThreshold: scannedThreshold,
		maxWorkers:       defaultMaxWorkers,
	}
}

func (p *Processor) Family() models.FileFamily {
	return models.FamilyPDF
}

func (p *Processor) Process(ctx context.Context, path string) (chunks []models.DocumentChunk, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pdfReader, err := openReader(content)
	if err != nil {
		return nil, diagnose(content, err)
	}

	numPages := pdfReader.NumPage()
	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	// 并行处理每一页, results are indexed so page order survives
	texts := make([]string, numPages)
	pageErrs := make([]error, numPages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts[pageNum-1], pageErrs[pageNum-1] = pageText(pdfReader, pageNum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failedPages := 0
	total := 0
	chunks = make([]models.DocumentChunk, 0, numPages)
	for i, text := range texts {
		if pageErrs[i] != nil {
			failedPages++
			p.logger.Warn("Failed to read page text",
				logger.Int("page", i+1),
				logger.Error(pageErrs[i]),
			)
			continue
		}
		text = strings.TrimSpace(text)
		total += len([]rune(text))
		chunks = append(chunks, models.DocumentChunk{
			Content: text,
			Metadata: map[string]interface{}{
				"page":    i + 1,
				"hash":    hashStr,
				"section": fmt.Sprintf("page_%d", i+1),
			},
		})
	}

	if numPages > 0 && failedPages == numPages {
		return nil, fmt.Errorf("failed to read text from any of %d pages: %w", numPages, errors.Join(pageErrs...))
	}

	if total < p.scannedThreshold {
		imagePages, inspectErr := imagePageCount(content)
		if inspectErr != nil {
			p.logger.Debug("PDF inspection failed", logger.Error(inspectErr))
			return nil, fmt.Errorf("%w: %d characters across %d pages", models.ErrScanned, total, numPages)
		}
		p.logger.Info("PDF has no usable text layer",
			logger.Int("characters", total),
			logger.Int("pages", numPages),
			logger.Int("imagePages", imagePages),
		)
		return nil, fmt.Errorf("%w: %d characters across %d pages, %d of them image-only",
			models.ErrScanned, total, numPages, imagePages)
	}

	return chunks, nil
}

// openReader guards against the parser panicking on malformed input.
func openReader(content []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(content), int64(len(content)))
}

func pageText(r *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page %d: %v", pageNum, rec)
		}
	}()
	page := r.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// diagnose explains why the text parser rejected content. pdfcpu reads the
// cross reference table on its own, so it can tell an encrypted file from a
// broken one.
func diagnose(content []byte, parseErr error) error {
	ctx, err := api.ReadContext(bytes.NewReader(content), model.NewDefaultConfiguration())
	switch {
	case errors.Is(err, pdfcpu.ErrWrongPassword):
		return models.ErrEncryptedPDF
	case err != nil:
		return fmt.Errorf("invalid PDF: %w", err)
	case ctx.Encrypt != nil:
		// opens without a password, but the text parser cannot decrypt it
		return fmt.Errorf("%w: %v", models.ErrEncryptedPDF, parseErr)
	default:
		return fmt.Errorf("failed to parse PDF: %w", parseErr)
	}
}

// imagePageCount counts pages that carry image XObjects.
func imagePageCount(content []byte) (int, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return 0, err
	}
	if ctx.Optimize == nil {
		return 0, nil
	}
	n := 0
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
			n++
		}
	}
	return n, nil
}

// Close 实现 document.Processor 接口的 Close 方法
func (p *Processor) Close() error {
	return nil
}
