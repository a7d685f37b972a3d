package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderXRequestID = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID tags each request with an id that flows into logs and audit
// events. An upstream X-Request-ID is kept only when it is a UUID, so callers
// cannot plant arbitrary text in the audit trail.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := uuid.NewString()
		if upstream, err := uuid.Parse(c.GetHeader(HeaderXRequestID)); err == nil {
			rid = upstream.String()
		}

		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)
		c.Next()
	}
}
