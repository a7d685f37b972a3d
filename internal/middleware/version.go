package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/account-security/internal/handler"
)

// VersionConfig lists the API versions a route group answers to.
type VersionConfig struct {
	HeaderName string
	Current    string
	Supported  []string
}

func DefaultVersionConfig() VersionConfig {
	return VersionConfig{
		HeaderName: "Accept-Version",
		Current:    "1.0",
		Supported:  []string{"1.0"},
	}
}

// Version echoes the served version in X-API-Version and rejects requests
// that ask for a version this group does not serve.
func Version(config VersionConfig) gin.HandlerFunc {
	supported := make(map[string]struct{}, len(config.Supported))
	for _, v := range config.Supported {
		supported[v] = struct{}{}
	}

	return func(c *gin.Context) {
		c.Header("X-API-Version", config.Current)

		if requested := c.GetHeader(config.HeaderName); requested != "" {
			if _, ok := supported[requested]; !ok {
				c.AbortWithStatusJSON(http.StatusNotAcceptable,
					handler.NewErrorResponse(fmt.Sprintf("API version %s not supported", requested)))
				return
			}
		}
		c.Next()
	}
}
