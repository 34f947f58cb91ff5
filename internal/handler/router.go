package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fyts-validation/internal/service"
	"fyts-validation/pkg/logger"
)

type RouterDeps struct {
	Sessions  *service.SessionManager
	Runs      *service.RunService
	Exporter  ExportTrigger
	JWTSecret string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	sessionHandler := NewSessionHandler(deps.Sessions)
	runHandler := NewRunHandler(deps.Runs)
	adminHandler := NewAdminHandler(deps.Runs, deps.Exporter)

	router.GET("/health", HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		sessions := api.Group("/sessions")
		sessions.POST("", sessionHandler.Start)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.POST("/:id/samples", sessionHandler.AddSamples)
		sessions.POST("/:id/error", sessionHandler.ReportError)
		sessions.POST("/:id/stop", sessionHandler.Stop)

		api.GET("/runs", runHandler.History)
		api.GET("/runs/:id", runHandler.Get)
		api.GET("/leaderboard", runHandler.Leaderboard)

		admin := api.Group("/admin", AdminAuth(deps.JWTSecret))
		admin.GET("/runs", adminHandler.ListRuns)
		admin.POST("/runs/:id/approve", adminHandler.Approve)
		admin.POST("/runs/:id/reject", adminHandler.Reject)
		admin.GET("/export", adminHandler.Export)
		admin.POST("/export/trigger", adminHandler.TriggerExport)
	}

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	}
}
