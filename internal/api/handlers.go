package api

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/service/ai"
)

const (
	apiVersion  = "2.0"
	testMessage = "Hello"
)

// ChatService runs relay exchanges.
type ChatService interface {
	Chat(ctx context.Context, requestID string, req models.ChatRequest) (models.ChatResponse, ai.Result)
	Configured() bool
	Describe() string
	Replies() ai.Replies
	WorkerStats() (running, idle int)
}

// OutcomeCounter reports how many calls ended in each outcome.
type OutcomeCounter interface {
	Counts(ctx context.Context) map[string]int64
}

// Handler wires HTTP routes to the chat service.
type Handler struct {
	chat    ChatService
	counter OutcomeCounter
	service string
	logger  *zap.Logger
}

// NewHandler constructs a Handler instance. counter may be nil.
func NewHandler(chat ChatService, counter OutcomeCounter, serviceName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chat:    chat,
		counter: counter,
		service: serviceName,
		logger:  logger.Named("api"),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(RequestID(), CORS())
	router.GET("/", h.status)
	router.GET("/health", h.health)
	router.GET("/test", h.testGeneration)
	router.POST("/chat", h.chatMessage)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "active",
		"ai":      h.chat.Describe(),
		"version": apiVersion,
	})
}

func (h *Handler) health(c *gin.Context) {
	outcomes := map[string]int64{}
	if h.counter != nil {
		outcomes = h.counter.Counts(c.Request.Context())
	}
	running, idle := h.chat.WorkerStats()
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"service":          h.service,
		"token_configured": h.chat.Configured(),
		"outcomes":         outcomes,
		"workers":          gin.H{"running": running, "idle": idle},
	})
}

// testGeneration runs the canned message through the full pipeline.
func (h *Handler) testGeneration(c *gin.Context) {
	resp, res := h.chat.Chat(c.Request.Context(), RequestIDFromContext(c), models.ChatRequest{
		Message: testMessage,
		History: models.History{},
	})
	c.JSON(http.StatusOK, gin.H{
		"response":         resp.Response,
		"outcome":          res.Outcome.String(),
		"token_configured": h.chat.Configured(),
	})
}

// chatMessage answers 200 for every application-level failure; only an unreadable body is rejected.
func (h *Handler) chatMessage(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.History == nil {
		req.History = models.History{}
	}
	requestID := RequestIDFromContext(c)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("chat handler panicked",
				zap.String("request_id", requestID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			c.JSON(http.StatusOK, models.ChatResponse{
				Response: h.chat.Replies().Unexpected,
				History:  req.History,
			})
		}
	}()

	resp, _ := h.chat.Chat(c.Request.Context(), requestID, req)
	c.JSON(http.StatusOK, resp)
}
