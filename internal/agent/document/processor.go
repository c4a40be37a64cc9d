package document

import (
	"context"

	"github.com/feichai0017/document-summarizer/internal/models"
)

// Processor 文档处理器接口
type Processor interface {
	// Family 返回处理器负责的文件类别
	Family() models.FileFamily

	// Process extracts text chunks from the file at path.
	// Image-only PDFs report models.ErrScanned.
	Process(ctx context.Context, path string) ([]models.DocumentChunk, error)

	// Close 清理资源
	Close() error
}
