package image

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// Recognizer is an OCR engine.
type Recognizer interface {
	// Recognize returns the text found in the image at imagePath.
	Recognize(ctx context.Context, imagePath, language string) (string, error)
	Name() string
	Close() error
}

// 图像预处理接口
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// Processor normalizes an image and runs it through a Recognizer.
type Processor struct {
	logger        logger.Logger
	recognizer    Recognizer
	preprocessors []ImagePreprocessor
	language      string
}

// NewProcessor uses DefaultPreprocessors when preprocessors is nil.
func NewProcessor(log logger.Logger, recognizer Recognizer, language string, preprocessors []ImagePreprocessor) *Processor {
	if preprocessors == nil {
		preprocessors = DefaultPreprocessors()
	}
	if language == "" {
		language = "eng"
	}
	return &Processor{
		logger:        log.Named("image"),
		recognizer:    recognizer,
		preprocessors: preprocessors,
		language:      language,
	}
}

func (p *Processor) Family() models.FileFamily {
	return models.FamilyImage
}

// 处理图像
func (p *Processor) Process(ctx context.Context, path string) ([]models.DocumentChunk, error) {
	if p.recognizer == nil {
		p.logger.Error("No OCR engine configured")
		return nil, models.ErrOCRFailed
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		p.logger.Warn("Failed to decode image", logger.Error(err))
		return nil, models.ErrOCRFailed
	}
	bounds := img.Bounds()

	processed, err := p.applyPreprocessing(img)
	if err != nil {
		p.logger.Warn("Image preprocessing failed", logger.Error(err))
		return nil, models.ErrOCRFailed
	}

	// engines get a lossless normalized copy next to the original
	normalized := path + ".ocr.png"
	if err := imaging.Save(processed, normalized); err != nil {
		p.logger.Warn("Failed to write normalized image", logger.Error(err))
		return nil, models.ErrOCRFailed
	}
	defer os.Remove(normalized)

	text, err := p.recognizer.Recognize(ctx, normalized, p.language)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrOCRFailed, ctx.Err())
		}
		p.logger.Warn("OCR engine failed",
			logger.String("engine", p.recognizer.Name()),
			logger.Error(err),
		)
		return nil, models.ErrOCRFailed
	}

	return []models.DocumentChunk{{
		Content: strings.TrimSpace(text),
		Metadata: map[string]interface{}{
			"source": p.recognizer.Name(),
			"width":  bounds.Dx(),
			"height": bounds.Dy(),
		},
	}}, nil
}

// 图像预处理
func (p *Processor) applyPreprocessing(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	var err error
	result := img
	for _, processor := range p.preprocessors {
		result, err = processor.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}

func (p *Processor) Close() error {
	if p.recognizer == nil {
		return nil
	}
	return p.recognizer.Close()
}
