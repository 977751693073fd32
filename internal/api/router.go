package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/orchestrator"
	"github.com/ChaseRain/deckstream/pkg/util"
)

func NewRouter(orch *orchestrator.Orchestrator, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	handler := NewHandler(orch, log)

	r.GET("/health", handler.Health)

	v1 := r.Group("/v1")
	{
		presentations := v1.Group("/presentations")
		presentations.POST("", handler.GeneratePresentation)
		presentations.GET("", handler.ListHistory)
		presentations.GET("/:id", handler.LoadPresentation)
		presentations.PUT("/:id", handler.CommitPresentation)
		presentations.POST("/:id/undo", handler.Undo)
		presentations.POST("/:id/redo", handler.Redo)
		presentations.POST("/:id/slides/:index/image", handler.GenerateImage)

		prompts := v1.Group("/prompts")
		prompts.GET("", handler.ListPrompts)
		prompts.POST("", handler.SavePrompt)
		prompts.GET("/diff", handler.DiffPrompts)
		prompts.POST("/reset", handler.ResetPrompts)
		prompts.POST("/:id/activate", handler.ActivatePrompt)
	}

	return r
}

const requestIDHeader = "X-Request-ID"

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = util.RandomString(16)
		}
		c.Header(requestIDHeader, requestID)

		log.Debug("request started",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.Next()
		log.Info("request completed",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
