package delivery

import (
	"net/http"
	"strconv"

	"mailmind/internal/email/domain"
	emaildto "mailmind/internal/email/dto"
	"mailmind/internal/email/repository"
	"mailmind/internal/email/usecase"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	syncUsecase     usecase.SyncUsecase
	analysisUsecase usecase.AnalysisUsecase
	pipeline        usecase.PipelineUsecase
	queryUsecase    usecase.QueryUsecase

	defaultWindowDays int
	incrementalSync   bool
}

func NewMessageHandler(
	syncUsecase usecase.SyncUsecase,
	analysisUsecase usecase.AnalysisUsecase,
	pipeline usecase.PipelineUsecase,
	queryUsecase usecase.QueryUsecase,
	defaultWindowDays int,
	incrementalSync bool,
) *MessageHandler {
	return &MessageHandler{
		syncUsecase:       syncUsecase,
		analysisUsecase:   analysisUsecase,
		pipeline:          pipeline,
		queryUsecase:      queryUsecase,
		defaultWindowDays: defaultWindowDays,
		incrementalSync:   incrementalSync,
	}
}

// window translates a sync request into the window the coordinator runs over
func (h *MessageHandler) window(req emaildto.SyncRequest) domain.SyncWindow {
	days := req.Days
	if days <= 0 {
		days = h.defaultWindowDays
	}
	switch req.Mode {
	case "all":
		return domain.All()
	case "recent":
		return domain.Recent(days)
	default:
		if h.incrementalSync {
			return domain.Incremental("")
		}
		return domain.Recent(days)
	}
}

func (h *MessageHandler) Sync(c *gin.Context) {
	var req emaildto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.syncUsecase.Sync(c.Request.Context(), h.window(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *MessageHandler) Analyze(c *gin.Context) {
	var req emaildto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.analysisUsecase.RunBatch(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *MessageHandler) RunPipeline(c *gin.Context) {
	var req emaildto.PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	window := h.window(emaildto.SyncRequest{Days: req.Days})
	stats, err := h.pipeline.Run(c.Request.Context(), window, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	filter := repository.ListFilter{
		Category: c.Query("category"),
		Sender:   c.Query("sender"),
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
	}
	if isReadStr := c.Query("is_read"); isReadStr != "" {
		isRead := isReadStr == "true"
		filter.IsRead = &isRead
	}

	messages, err := h.queryUsecase.ListMessages(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, emaildto.MessagesResponse{
		Messages: messages,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
		Count:    len(messages),
	})
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	id := c.Param("id")
	msg, err := h.queryUsecase.GetMessage(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) PriorityMessages(c *gin.Context) {
	messages, err := h.queryUsecase.PriorityMessages(intQuery(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	messages, err := h.queryUsecase.Search(query, intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

func (h *MessageHandler) Stats(c *gin.Context) {
	stats, err := h.queryUsecase.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
