package middleware

import (
	"time"

	"ekh_mining/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestLog tags the request context with a request id and logs the
// outcome of every request.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWith(c.Request.Context(), "request_id", id))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		HTTPRequests.WithLabelValues(c.Request.Method, c.FullPath(), statusClass(status)).Inc()

		log := logger.WithContext(c.Request.Context())
		args := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "latency", time.Since(start)}
		if status >= 500 {
			log.Error("request failed", args...)
			return
		}
		log.Debug("request", args...)
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
