package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/dto"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/queue"
)

// QueueHandler exposes queue state and operator actions. Every route sits
// behind the admin API key.
type QueueHandler struct {
	service QueueService
}

func NewQueueHandler(service QueueService) *QueueHandler {
	return &QueueHandler{service: service}
}

func (h *QueueHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.QueueStatus())
}

func (h *QueueHandler) ListJobs(c *gin.Context) {
	status := model.JobStatus(c.Query("status"))
	switch status {
	case "", model.JobStatusPending, model.JobStatusProcessing, model.JobStatusCompleted, model.JobStatusDead:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobResponses(h.service.Jobs(status)))
}

func (h *QueueHandler) GetJob(c *gin.Context) {
	job, err := h.service.Job(c.Param("job_id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, dto.NewJobResponse(job))
}

func (h *QueueHandler) RetryDead(c *gin.Context) {
	ctx := c.Request.Context()
	n := h.service.RetryDeadJobs(ctx)
	slog.InfoContext(ctx, "dead jobs requeued via admin API", "count", n)
	c.JSON(http.StatusOK, dto.CountResponse{Count: n})
}

func (h *QueueHandler) ClearCompleted(c *gin.Context) {
	ctx := c.Request.Context()
	n := h.service.ClearCompleted(ctx)
	slog.InfoContext(ctx, "completed jobs cleared via admin API", "count", n)
	c.JSON(http.StatusOK, dto.CountResponse{Count: n})
}
