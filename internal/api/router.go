package api

import (
	v1 "github.com/costlens/costlens/internal/api/v1"
	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health    *v1.HealthHandler
	Ingest    *v1.IngestHandler
	Analytics *v1.AnalyticsHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	// v1 routes
	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	// Ingestion routes
	ingest := router.Group("/ingest")
	{
		ingest.POST("/:upload_id/rows", handlers.Ingest.IngestRows)
	}

	// Analytics routes
	analytics := router.Group("/analytics")
	{
		analytics.POST("/dashboard", handlers.Analytics.GetDashboard)
	}
}
