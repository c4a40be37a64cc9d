package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-summarizer/api/middleware"
	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/internal/service/document"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// UploadResponse 上传响应
type UploadResponse struct {
	Message   string             `json:"message"`
	Count     int                `json:"count"`
	Documents []*models.Document `json:"documents"`
	Document  *models.Document   `json:"document"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log,
	}
}

// Upload 上传文档
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No file uploaded", nil)
		return
	}

	docs, err := h.service.Upload(c.Request.Context(), files, c.PostForm("title"))
	if err != nil {
		if errors.Is(err, models.ErrInvalidFile) {
			h.handleError(c, http.StatusBadRequest, "Invalid file", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Upload failed", err)
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{
		Message:   "Upload successful",
		Count:     len(docs),
		Documents: docs,
		Document:  docs[0],
	})
}

// Get 获取文档
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, "Unable to fetch document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// Status returns only the summary fields, for polling.
func (h *DocumentHandler) Status(c *gin.Context) {
	state, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, "Unable to fetch status", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Regenerate 重新生成摘要
func (h *DocumentHandler) Regenerate(c *gin.Context) {
	doc, err := h.service.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, "Unable to regenerate summary", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Summary regeneration started",
		"document": doc,
	})
}

// Delete 删除文档
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleServiceError(c, "Unable to delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

func (h *DocumentHandler) handleServiceError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.handleError(c, http.StatusNotFound, "Document not found", nil)
	case errors.Is(err, models.ErrRunInFlight):
		h.handleError(c, http.StatusConflict, "Summary generation already in progress", nil)
	default:
		h.handleError(c, http.StatusInternalServerError, message, err)
	}
}

// handleError 统一错误处理
func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	log := middleware.GetLogger(c, h.logger)
	fields := []logger.Field{logger.String("path", c.Request.URL.Path)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Debug(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
