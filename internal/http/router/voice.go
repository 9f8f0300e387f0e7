package router

import (
	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/handler"
)

func VoiceRouter(rg *gin.RouterGroup, h *handler.VoiceHandler) {
	rg.GET("/profiles", h.List)
	rg.POST("/profiles", h.Enroll)
	rg.POST("/profiles/:profile_id/link", h.Link)
	rg.POST("/identify", h.Identify)
}
