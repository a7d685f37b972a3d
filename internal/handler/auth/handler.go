package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/account-security/internal/handler"
	"github.com/jwalitptl/account-security/internal/middleware"
	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

// Service is the slice of the authentication service the handler needs.
type Service interface {
	Authenticate(ctx context.Context, email, password string, rc model.RequestContext) (*model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string, rc model.RequestContext) error
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string, rc model.RequestContext) error
	RequestPasswordReset(ctx context.Context, email string, rc model.RequestContext) error
	CompletePasswordReset(ctx context.Context, token, next string, rc model.RequestContext) error
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public endpoints on public and the session
// endpoints on protected. login is wrapped by limit when it is non-nil.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup, limit gin.HandlerFunc) {
	auth := public.Group("/auth")
	{
		if limit != nil {
			auth.POST("/login", limit, h.Login)
			auth.POST("/forgot-password", limit, h.ForgotPassword)
		} else {
			auth.POST("/login", h.Login)
			auth.POST("/forgot-password", h.ForgotPassword)
		}
		auth.POST("/refresh", h.RefreshToken)
		auth.POST("/reset-password", h.ResetPassword)
	}

	session := protected.Group("/auth")
	{
		session.GET("/validate", h.Validate)
		session.POST("/logout", h.Logout)
		session.POST("/change-password", h.ChangePassword)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password, middleware.RequestContext(c))
	if err != nil {
		// locked and wrong-password look the same to the caller
		if errors.Is(err, apperrors.InvalidCredentials) || errors.Is(err, apperrors.AccountLocked) {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse(apperrors.InvalidCredentials.Message))
			return
		}
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req model.RefreshTokenRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&req)

	token := c.GetString(middleware.ContextAccessToken)
	if err := h.svc.Logout(c.Request.Context(), token, req.RefreshToken, middleware.RequestContext(c)); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewMessageResponse("logged out successfully"))
}

// Validate reports the identity and expiry of the presented access token.
// Rejected tokens never get here: Authenticate answers 401 first.
func (h *Handler) Validate(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(claims.Validation()))
}

func (h *Handler) ChangePassword(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.ChangePasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	err := h.svc.ChangePassword(c.Request.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword, middleware.RequestContext(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewMessageResponse("password changed successfully"))
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	_ = h.svc.RequestPasswordReset(c.Request.Context(), req.Email, middleware.RequestContext(c))

	c.JSON(http.StatusAccepted, handler.NewMessageResponse("if the account exists, a reset link has been sent"))
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.svc.CompletePasswordReset(c.Request.Context(), req.Token, req.NewPassword, middleware.RequestContext(c)); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewMessageResponse("password reset successfully"))
}
