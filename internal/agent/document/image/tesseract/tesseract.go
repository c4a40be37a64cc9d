// Package tesseract wraps the Tesseract engine. It needs libtesseract at
// build time, so it lives apart from the engine-neutral image package.
package tesseract

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-summarizer/internal/agent/document/image"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

type Recognizer struct {
	pageSegMode gosseract.PageSegMode
	slots       *image.EngineSlots
	logger      logger.Logger
}

// NewRecognizer allows one engine per CPU.
func NewRecognizer(log logger.Logger) *Recognizer {
	return &Recognizer{
		pageSegMode: gosseract.PSM_AUTO,
		slots:       image.NewEngineSlots(runtime.NumCPU()),
		logger:      log.Named("tesseract"),
	}
}

func (r *Recognizer) Name() string {
	return "tesseract"
}

// Recognize runs one Tesseract client per call. The image is read into
// memory first, so a cancelled caller may remove the file while the engine
// finishes in the background.
func (r *Recognizer) Recognize(ctx context.Context, imagePath, language string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}

	return r.slots.Run(ctx, func() (string, error) {
		// 为每个任务创建新的 Tesseract 客户端
		client := gosseract.NewClient()
		defer client.Close()
		return r.run(client, data, language)
	})
}

func (r *Recognizer) run(client *gosseract.Client, data []byte, language string) (string, error) {
	if err := client.SetLanguage(language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(r.pageSegMode); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return text, nil
}

func (r *Recognizer) Close() error {
	return nil
}
