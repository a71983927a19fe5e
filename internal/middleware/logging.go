package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rental/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger attaches a request scoped logrus entry to the request context
// and logs one line per request.
func RequestLogger(base *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		entry := base.WithField("request_id", requestID)
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), entry))

		c.Next()

		fields := log.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if p, ok := GetPrincipal(c); ok {
			fields["user_id"] = p.UserID
		}

		entry = entry.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Warn("request completed with errors")
		default:
			entry.Info("request completed")
		}
	}
}
