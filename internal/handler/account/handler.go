package account

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/account-security/internal/handler"
	"github.com/jwalitptl/account-security/internal/middleware"
	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

type Service interface {
	Register(ctx context.Context, actor model.Actor, req *model.RegisterAccountRequest, rc model.RequestContext) (*model.Account, error)
	Unlock(ctx context.Context, actor model.Actor, id uuid.UUID, req model.ModerationRequest, rc model.RequestContext) error
	Lock(ctx context.Context, actor model.Actor, id uuid.UUID, req model.ModerationRequest, rc model.RequestContext) (*time.Time, error)
	Deactivate(ctx context.Context, actor model.Actor, id uuid.UUID, rc model.RequestContext) error
	DeactivateSelf(ctx context.Context, accountID uuid.UUID, password string, rc model.RequestContext) error
	PasswordHistory(ctx context.Context, accountID uuid.UUID) (*model.PasswordHistorySummary, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
}

type Handler struct {
	service Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service: service,
		auth:    auth,
	}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	me := protected.Group("/accounts/me")
	{
		me.GET("", h.GetMe)
		me.POST("/deactivate", h.DeactivateSelf)
		me.GET("/password-history", h.PasswordHistory)
	}

	admin := protected.Group("/admin/accounts")
	{
		admin.POST("", h.auth.RequireCapability(model.CapManageAccounts), h.Register)
		admin.DELETE("/:id", h.auth.RequireCapability(model.CapManageAccounts), h.Deactivate)
		admin.POST("/:id/unlock", h.auth.RequireCapability(model.CapModerateAccounts), h.Unlock)
		admin.POST("/:id/lock", h.auth.RequireCapability(model.CapModerateAccounts), h.Lock)
	}
}

func (h *Handler) GetMe(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	acc, err := h.service.GetAccount(c.Request.Context(), claims.AccountID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(acc))
}

func (h *Handler) Register(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.RegisterAccountRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	acc, err := h.service.Register(c.Request.Context(), actor, &req, middleware.RequestContext(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(acc))
}

func (h *Handler) Unlock(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	var req model.ModerationRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.Unlock(c.Request.Context(), actor, id, req, middleware.RequestContext(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("account unlocked"))
}

func (h *Handler) Lock(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	var req model.ModerationRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	until, err := h.service.Lock(c.Request.Context(), actor, id, req, middleware.RequestContext(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"locked_until": until}))
}

func (h *Handler) Deactivate(c *gin.Context) {
	actor, id, ok := h.target(c)
	if !ok {
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), actor, id, middleware.RequestContext(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("account deactivated"))
}

func (h *Handler) DeactivateSelf(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.DeactivateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.DeactivateSelf(c.Request.Context(), claims.AccountID, req.Password, middleware.RequestContext(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewMessageResponse("account deactivated"))
}

func (h *Handler) PasswordHistory(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	summary, err := h.service.PasswordHistory(c.Request.Context(), claims.AccountID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}

func (h *Handler) target(c *gin.Context) (model.Actor, uuid.UUID, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return model.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Fail(c, apperrors.BadRequest("invalid account id", err))
		return model.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
