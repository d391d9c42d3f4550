package middleware

import (
	"time"

	"discord-issue-bot/internal/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-ID"

// LoggingMiddleware adds trace IDs and structured logging to requests.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set("trace_id", traceID)
		c.Header(TraceHeader, traceID)
		c.Request = c.Request.WithContext(log.WithTraceID(c.Request.Context(), traceID))

		startTime := time.Now()
		logger := log.WithContext(c)
		logger.Debug("Request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote_addr", c.ClientIP(),
		)

		c.Next()

		logger.Info("Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(startTime).Seconds(),
		)
	}
}
