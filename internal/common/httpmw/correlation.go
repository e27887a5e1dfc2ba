package httpmw

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/common/logger"
)

// RequestIDHeader carries the correlation id between services.
const RequestIDHeader = "X-Request-ID"

// Correlation assigns each request a correlation id, reusing the caller's
// X-Request-ID when present. The id is stored in the request context under
// the logger keys so logger.WithContext picks it up, and echoed back in the
// response header.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, logger.CorrelationIDKey, requestID)
		ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}
