package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware logs each completed request with its status and latency and
// echoes (or assigns) an X-Request-ID header.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(headerRequestID, reqID)

		c.Next()

		evt := Info()
		if c.Writer.Status() >= 500 {
			evt = Error()
		}
		evt.Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Float64("latency_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("request completed")
	}
}
