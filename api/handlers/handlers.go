package handlers

import (
	"github.com/feichai0017/document-summarizer/internal/service/document"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Health   *HealthHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	health *HealthHandler,
	logger logger.Logger,
) *Handlers {
	if health == nil {
		health = NewHealthHandler(nil)
	}
	return &Handlers{
		Document: NewDocumentHandler(documentService, logger),
		Health:   health,
	}
}
