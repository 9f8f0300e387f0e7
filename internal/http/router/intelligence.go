package router

import (
	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/handler"
)

func IntelligenceRouter(rg *gin.RouterGroup, h *handler.IntelligenceHandler) {
	commitments := rg.Group("/commitments")
	{
		commitments.GET("", h.ListCommitments)
		commitments.GET("/:commitment_id", h.GetCommitment)
		commitments.POST("/:commitment_id/fulfill", h.FulfillCommitment)
		commitments.POST("/:commitment_id/miss", h.MissCommitment)
	}

	rg.GET("/memories/:memory_id/tasks", h.ListTasks)

	contacts := rg.Group("/contacts")
	{
		contacts.GET("", h.ListContacts)
		contacts.POST("", h.AddContact)
	}
}
