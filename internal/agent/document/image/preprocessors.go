package image

import (
	"image"

	"github.com/disintegration/imaging"
)

// DefaultPreprocessors is tuned for photographed or scanned pages.
func DefaultPreprocessors() []ImagePreprocessor {
	return []ImagePreprocessor{
		NewUpscaleProcessor(1000),
		NewGrayscaleProcessor(),
		NewContrastNormalizationProcessor(20),
		NewSharpenProcessor(1.0),
	}
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// 放大处理器: small captures are upscaled so glyphs reach a readable size.
type UpscaleProcessor struct {
	minWidth int
}

func NewUpscaleProcessor(minWidth int) *UpscaleProcessor {
	return &UpscaleProcessor{minWidth: minWidth}
}

func (p *UpscaleProcessor) Process(img image.Image) (image.Image, error) {
	w := img.Bounds().Dx()
	if w == 0 || w >= p.minWidth {
		return img, nil
	}
	return imaging.Resize(img, p.minWidth, 0, imaging.Lanczos), nil
}

// 锐化处理器
type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.strength), nil
}

// 对比度处理器
type ContrastNormalizationProcessor struct {
	percentage float64
}

func NewContrastNormalizationProcessor(percentage float64) *ContrastNormalizationProcessor {
	return &ContrastNormalizationProcessor{percentage: percentage}
}

func (p *ContrastNormalizationProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.percentage), nil
}
