package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orderbot/backend/internal/interfaces/http/dto"
)

// Provider webhook payloads are small; 1 MiB leaves headroom for Messenger
// batches.
const DefaultWebhookBodyLimit int64 = 1 << 20

// BodyLimit rejects declared oversize bodies with 413 and caps undeclared
// ones, so a signature check never reads an unbounded body.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
				c.GetString(RequestIDKey),
			))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
