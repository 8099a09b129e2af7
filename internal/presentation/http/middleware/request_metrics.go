package middleware

import (
	"context"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/metrics"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an id and stores it on the request context
// so channel loggers can pick it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logging.RequestIDKey, id))
		c.Next()
	}
}

const skipMetricsKey = "requestMetrics.skip"

// SkipRequestMetrics keeps a route out of the request samples. Long-lived
// streams use it; their connection time is not a response time.
func SkipRequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(skipMetricsKey, true)
		c.Next()
	}
}

// RequestMetrics measures every request with the collector. Unmatched paths
// are grouped under one route label.
func RequestMetrics(collector *metrics.Collector, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		marker := collector.Begin(route, c.Request.Method)
		c.Next()
		status := c.Writer.Status()

		log := logger.WithContext(logging.ChannelHTTP, c.Request.Context())
		if c.GetBool(skipMetricsKey) {
			log.Debug("Stream closed", "method", c.Request.Method, "route", route, "duration", time.Since(marker.StartTime))
			return
		}
		collector.End(c.Request.Context(), marker, status)

		if status >= 500 {
			log.Error("Request failed", "method", c.Request.Method, "route", route, "status", status, "duration", time.Since(marker.StartTime))
			return
		}
		log.Debug("Request served", "method", c.Request.Method, "route", route, "status", status, "duration", time.Since(marker.StartTime))
	}
}
