package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

// ActivityLogger accepts audit entries without blocking the request.
type ActivityLogger interface {
	Log(ctx context.Context, entry model.ActivityEntry)
}

type AuditMiddleware struct {
	logger ActivityLogger
}

func NewAuditMiddleware(logger ActivityLogger) *AuditMiddleware {
	return &AuditMiddleware{logger: logger}
}

// DeniedAccess records an admin_action event whenever an authenticated
// caller is refused with 403. It must run after Authenticate.
func (m *AuditMiddleware) DeniedAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !forbidden(c) {
			return
		}
		actor, ok := ActorFrom(c)
		if !ok {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		extra := model.Extra("action", "denied", "method", c.Request.Method, "path", path)
		if id := c.Param("id"); id != "" {
			extra.Fields["target_id"] = id
		}

		m.logger.Log(c.Request.Context(), model.ActivityEntry{
			AccountID:      actor.ID,
			OrganizationID: actor.OrganizationID,
			Kind:           model.ActivityAdminAction,
			Description:    "access denied",
			Request:        RequestContext(c),
			Extra:          extra,
		})
	}
}

// forbidden reports a 403 that was either written already or is still
// pending in c.Errors for the error renderer.
func forbidden(c *gin.Context) bool {
	if c.Writer.Status() == http.StatusForbidden {
		return true
	}
	if last := c.Errors.Last(); last != nil && !c.Writer.Written() {
		return apperrors.HTTPStatus(last.Err) == http.StatusForbidden
	}
	return false
}
