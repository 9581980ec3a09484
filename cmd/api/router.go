package api

import (
	"net/http"

	emailDelivery "mailmind/internal/email/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, messageHandler *emailDelivery.MessageHandler) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Pipeline triggers
		api.POST("/sync", messageHandler.Sync)
		api.POST("/analyze", messageHandler.Analyze)
		api.POST("/pipeline/run", messageHandler.RunPipeline)

		// Mailbox reads
		messages := api.Group("/messages")
		{
			messages.GET("", messageHandler.ListMessages)
			messages.GET("/priority", messageHandler.PriorityMessages)
			messages.GET("/:id", messageHandler.GetMessage)
		}

		api.GET("/search", messageHandler.Search)
		api.GET("/stats", messageHandler.Stats)
	}
}
