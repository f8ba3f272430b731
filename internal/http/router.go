package http

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/fablecast-backend/internal/http/handlers"
	"github.com/yungbote/fablecast-backend/internal/http/middleware"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log          *logger.Logger
	EbookHandler *handlers.EbookHandler
	AudioHandler *handlers.AudioHandler
	ExamHandler  *handlers.ExamHandler
	JobHandler   *handlers.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(cfg.Log))

	health := handlers.NewHealthHandler()
	router.GET("/healthz", health.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/ebooks", cfg.EbookHandler.Create)
		api.GET("/ebooks/:id", cfg.EbookHandler.Get)
		api.GET("/ebooks/:id/status", cfg.EbookHandler.Status)
		api.POST("/ebooks/:id/resume", cfg.EbookHandler.Resume)
		api.POST("/ebooks/:id/audio", cfg.AudioHandler.Create)
		api.POST("/ebooks/:id/exam", cfg.ExamHandler.Create)

		api.GET("/audio-collections/:id", cfg.AudioHandler.Get)
		api.GET("/audio-collections/:id/status", cfg.AudioHandler.Status)
		api.POST("/audio-collections/:id/resume", cfg.AudioHandler.Resume)

		api.GET("/exams/:id", cfg.ExamHandler.Get)
		api.GET("/exams/:id/status", cfg.ExamHandler.Status)
		api.POST("/exams/:id/resume", cfg.ExamHandler.Resume)

		api.GET("/jobs/:id", cfg.JobHandler.Get)
		api.POST("/jobs/:id/cancel", cfg.JobHandler.Cancel)
	}

	return router
}
