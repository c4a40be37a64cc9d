package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-summarizer/api/handlers"
	"github.com/feichai0017/document-summarizer/api/middleware"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowedOrigins []string, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(allowedOrigins))

	// 健康检查
	r.GET("/health", h.Health.Health)

	// API 版本组
	v1 := r.Group("/api/v1")

	// 文档路由组
	docs := v1.Group("/documents")
	{
		docs.POST("", h.Document.Upload)
		docs.POST("/upload", h.Document.Upload)
		docs.GET("/:id", h.Document.Get)
		docs.GET("/:id/status", h.Document.Status)
		docs.POST("/:id/regenerate", h.Document.Regenerate)
		docs.POST("/:id/summary", h.Document.Regenerate)
		docs.DELETE("/:id", h.Document.Delete)
	}
}
