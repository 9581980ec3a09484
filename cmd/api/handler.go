package api

import (
	emailDelivery "mailmind/internal/email/delivery"
	"mailmind/internal/email/usecase"
	"mailmind/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	messageHandler *emailDelivery.MessageHandler
}

func NewHandler(
	syncUc usecase.SyncUsecase,
	analysisUc usecase.AnalysisUsecase,
	pipelineUc usecase.PipelineUsecase,
	queryUc usecase.QueryUsecase,
	cfg *config.Config,
) *Handler {
	messageHandler := emailDelivery.NewMessageHandler(
		syncUc, analysisUc, pipelineUc, queryUc,
		cfg.SyncWindowDays, cfg.IncrementalSync,
	)

	return &Handler{
		messageHandler: messageHandler,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.messageHandler)

	return r.Run(addr)
}
