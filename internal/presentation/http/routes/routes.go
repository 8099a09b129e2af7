// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/application/container"
	"github.com/AtRiskMedia/compliance-core/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/compliance-core/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestMetrics(container.Collector, container.Logger))

	// Initialize handlers
	observabilityHandlers := handlers.NewObservabilityHandlers(container.ObservabilityService, container.AlertStream, container.Logger)
	cacheHandlers := handlers.NewCacheHandlers(container.Store, container.Loader, container.Logger)
	recordHandlers := handlers.NewRecordHandlers(container.RecordService, container.Logger)
	logHandlers := handlers.NewLogHandlers(container.Logger, container.TelemetryRepo)

	// Liveness and scrape endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(container.StartedAt).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(container.Exporter.Registry(), promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		observability := api.Group("/observability")
		{
			observability.GET("/metrics", observabilityHandlers.GetSystemMetrics)
			observability.GET("/health", observabilityHandlers.GetHealth)
			observability.GET("/health/history", observabilityHandlers.GetHealthHistory)
			observability.GET("/alerts", observabilityHandlers.GetAlerts)
			observability.POST("/alerts", observabilityHandlers.CreateAlert)
			observability.DELETE("/alerts/:id", observabilityHandlers.ResolveAlert)
			observability.GET("/alerts/stream", middleware.SkipRequestMetrics(), observabilityHandlers.StreamAlerts)
		}

		cache := api.Group("/cache")
		{
			cache.GET("/stats", cacheHandlers.GetStats)
			cache.POST("/invalidate", cacheHandlers.Invalidate)
		}

		records := api.Group("/records")
		{
			records.GET("", recordHandlers.GetRecords)
			records.PUT("/:id", recordHandlers.SaveRecord)
		}

		logs := api.Group("/logs")
		{
			logs.GET("/levels", logHandlers.GetLogLevels)
			logs.POST("/levels", logHandlers.SetLogLevel)
			logs.GET("/entries", logHandlers.GetLogEntries)
			logs.GET("/stream", middleware.SkipRequestMetrics(), logHandlers.StreamLogs)
		}
	}

	return r
}
