package router

import (
	"github.com/gin-gonic/gin"

	"companion.app/relay/internal/http/handler"
)

type RouterConfig struct {
	AdminAPIKey     string
	TraceHeaderName string
}

type Services struct {
	Conversations handler.ConversationService
	Voice         handler.VoiceService
	Commitments   handler.CommitmentService
	Tasks         handler.TaskService
	Contacts      handler.ContactService
	Queue         handler.QueueService
}

func SetupRoutes(router *gin.Engine, services Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		conversationHandler := handler.NewConversationHandler(services.Conversations, cfg.TraceHeaderName)
		ConversationRouter(v1.Group("/conversations"), conversationHandler)

		voiceHandler := handler.NewVoiceHandler(services.Voice)
		VoiceRouter(v1.Group("/voice"), voiceHandler)

		intelligenceHandler := handler.NewIntelligenceHandler(services.Commitments, services.Tasks, services.Contacts)
		IntelligenceRouter(v1, intelligenceHandler)
	}

	admin := router.Group("/admin")
	admin.Use(handler.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		queueHandler := handler.NewQueueHandler(services.Queue)
		QueueRouter(admin.Group("/queue"), queueHandler)
	}
}
