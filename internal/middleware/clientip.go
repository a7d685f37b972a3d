package middleware

import (
	"net"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/account-security/internal/model"
)

// ClientIP returns the caller address as gin resolves it: forwarding headers
// count only when the peer is a trusted proxy. A value that is not an IP
// yields "".
func ClientIP(c *gin.Context) string {
	ip := net.ParseIP(c.ClientIP())
	if ip == nil {
		return ""
	}
	return ip.String()
}

// RequestContext collects the caller metadata recorded with audit events.
func RequestContext(c *gin.Context) model.RequestContext {
	return model.RequestContext{
		IPAddress: ClientIP(c),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString(ContextRequestID),
	}
}
