package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-summarizer/pkg/queue"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// QueueInspector reports the backlog of the task queue.
type QueueInspector interface {
	Stats(ctx context.Context) (*queue.Stats, error)
}

type HealthHandler struct {
	checks []HealthCheck
	queue  QueueInspector
}

func NewHealthHandler(q QueueInspector, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, queue: q}
}

// Health returns 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			deps[chk.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[chk.Name] = "ok"
	}

	body := gin.H{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	if h.queue != nil {
		if stats, err := h.queue.Stats(ctx); err == nil {
			body["queue"] = stats
		}
	}
	c.JSON(status, body)
}
