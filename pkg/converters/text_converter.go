package converters

import (
	"sort"
	"strings"

	"github.com/feichai0017/document-summarizer/internal/models"
)

// DocumentConverter 定义文档转换器接口
type DocumentConverter interface {
	Convert(chunks []models.DocumentChunk) string
}

// TextConverter joins extracted chunks into the plain text handed to the
// summarizer. Chunks carrying a "page" number are put back in page order,
// since processors may emit them out of order.
type TextConverter struct {
	Separator string
}

func NewTextConverter() *TextConverter {
	return &TextConverter{Separator: "\n\n"}
}

func (c *TextConverter) Convert(chunks []models.DocumentChunk) string {
	ordered := make([]models.DocumentChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return pageOf(ordered[i]) < pageOf(ordered[j])
	})

	parts := make([]string, 0, len(ordered))
	for _, chunk := range ordered {
		if text := strings.TrimSpace(chunk.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, c.Separator)
}

func pageOf(chunk models.DocumentChunk) int {
	switch v := chunk.Metadata["page"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
