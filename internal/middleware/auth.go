package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/account-security/internal/handler"
	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

const (
	ContextClaims      = "claims"
	ContextAccessToken = "access_token"
)

// TokenValidator resolves a bearer token into its claims, rejecting revoked
// tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores its claims in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing or invalid authorization header"))
			return
		}

		claims, err := m.tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			status := apperrors.HTTPStatus(err)
			if status != http.StatusInternalServerError {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, handler.NewErrorResponse(apperrors.PublicMessage(err)))
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextAccessToken, token)
		c.Next()
	}
}

// RequireCapability rejects callers whose role does not grant capability.
// It must run after Authenticate.
func (m *AuthMiddleware) RequireCapability(capability model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
			return
		}
		if !claims.Role.Can(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("permission denied"))
			return
		}
		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func ClaimsFrom(c *gin.Context) (*model.TokenClaims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*model.TokenClaims)
	return claims, ok
}

// ActorFrom builds the administrative actor of the authenticated caller.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{
		ID:             claims.AccountID,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
	}, true
}
