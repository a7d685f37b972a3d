package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/account-security/internal/handler"
	"github.com/jwalitptl/account-security/internal/middleware"
	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

// Service reads the activity log.
type Service interface {
	Query(ctx context.Context, filter model.ActivityFilter) (*model.ActivityPage, error)
	ListActivity(ctx context.Context, accountID uuid.UUID, filter model.ActivityFilter) (*model.ActivityPage, error)
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
	protected.GET("/activity", h.auth.RequireCapability(model.CapViewOwnActivity), h.ListOwn)
	protected.GET("/admin/activity", h.auth.RequireCapability(model.CapViewAllActivity), h.ListAll)
}

// ListOwn returns the caller's own activity, filterable by kind and date.
func (h *Handler) ListOwn(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var q model.ActivityQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	filter, err := toFilter(q)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	// account and address filters are for staff only
	filter.AccountID = nil
	filter.IPAddress = ""

	page, err := h.service.ListActivity(c.Request.Context(), claims.AccountID, filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

// ListAll returns activity across the caller's organization.
func (h *Handler) ListAll(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}

	var q model.ActivityQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	filter, err := toFilter(q)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	org := claims.OrganizationID
	filter.OrganizationID = &org

	page, err := h.service.Query(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func toFilter(q model.ActivityQuery) (model.ActivityFilter, error) {
	filter := model.ActivityFilter{
		Kind:      model.ActivityKind(q.Kind),
		IPAddress: q.IPAddress,
		Pagination: model.Pagination{
			Offset:   q.Offset,
			PageSize: q.PageSize,
		}.Normalize(),
	}

	if filter.Kind != "" && !filter.Kind.Valid() {
		return filter, apperrors.BadRequest(fmt.Sprintf("unknown activity kind %q", q.Kind), nil)
	}
	if q.AccountID != "" {
		id, err := uuid.Parse(q.AccountID)
		if err != nil {
			return filter, apperrors.BadRequest("invalid account_id", err)
		}
		filter.AccountID = &id
	}

	var err error
	if filter.From, err = parseTime(q.From, false); err != nil {
		return filter, apperrors.BadRequest("invalid from", err)
	}
	if filter.To, err = parseTime(q.To, true); err != nil {
		return filter, apperrors.BadRequest("invalid to", err)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, apperrors.BadRequest("to must not be before from", nil)
	}
	return filter, nil
}

// parseTime accepts RFC 3339 or a plain date. A plain date used as an upper
// bound covers the whole day.
func parseTime(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return &d, nil
}
