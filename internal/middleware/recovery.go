package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recovery turns a handler panic into a 500 carrying the request id.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			// route template only: raw paths may carry reset tokens
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			log.Error().
				Interface("error", rec).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("route", route).
				Str("client_ip", ClientIP(c)).
				Str("request_id", c.GetString(ContextRequestID)).
				Msg("request panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Status:  "error",
				Code:    http.StatusInternalServerError,
				Message: "internal server error",
				TraceID: c.GetString(ContextRequestID),
			})
		}()
		c.Next()
	}
}
