package router

import (
	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/handler"
)

// QueueRouter mounts the operator routes; the caller applies admin auth.
func QueueRouter(rg *gin.RouterGroup, h *handler.QueueHandler) {
	rg.GET("", h.Status)
	rg.GET("/jobs", h.ListJobs)
	rg.GET("/jobs/:job_id", h.GetJob)
	rg.POST("/retry-dead", h.RetryDead)
	rg.POST("/clear-completed", h.ClearCompleted)
}
