package router

import (
	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/handler"
)

func ConversationRouter(rg *gin.RouterGroup, h *handler.ConversationHandler) {
	rg.POST("/ingest", h.Ingest)
	rg.GET("/:session_id", h.Get)
	rg.POST("/:session_id/end", h.End)
	rg.POST("/:session_id/reconcile", h.Reconcile)
}
