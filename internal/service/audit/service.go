package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
	"github.com/jwalitptl/account-security/pkg/metrics"
)

type Service struct {
	repo    repository.AuditRepository
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.AuditRepository, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		logger:  logger.With().Str("component", "audit").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// Record appends an activity event. A store failure is reported as
// AuditUnavailable.
func (s *Service) Record(ctx context.Context, entry model.ActivityEntry) (*model.ActivityLog, error) {
	if !entry.Kind.Valid() {
		return nil, apperrors.BadRequest("unknown activity kind "+string(entry.Kind), nil)
	}

	extra := entry.Extra
	if extra.Version == 0 {
		extra.Version = model.ActivityExtraVersion
	}

	log := &model.ActivityLog{
		ID:             uuid.New(),
		AccountID:      entry.AccountID,
		OrganizationID: entry.OrganizationID,
		Kind:           entry.Kind,
		Description:    entry.Description,
		IPAddress:      optional(entry.Request.IPAddress),
		UserAgent:      optional(entry.Request.UserAgent),
		Extra:          extra,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repo.Create(ctx, log); err != nil {
		s.metrics.AuditWrites.WithLabelValues(string(entry.Kind), "error").Inc()
		return nil, apperrors.NewAuditUnavailable(err)
	}
	s.metrics.AuditWrites.WithLabelValues(string(entry.Kind), "ok").Inc()
	return log, nil
}

// RecordBestEffort records entry and logs a warning instead of failing.
func (s *Service) RecordBestEffort(ctx context.Context, entry model.ActivityEntry) {
	if _, err := s.Record(ctx, entry); err != nil {
		s.logger.Warn().
			Err(err).
			Str("account_id", entry.AccountID.String()).
			Str("kind", string(entry.Kind)).
			Str("request_id", entry.Request.RequestID).
			Msg("audit event dropped")
	}
}

// Query returns one page of events in descending time order.
func (s *Service) Query(ctx context.Context, filter model.ActivityFilter) (*model.ActivityPage, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, apperrors.BadRequest("unknown activity kind "+string(filter.Kind), nil)
	}
	filter.Pagination = filter.Pagination.Normalize()

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewAuditUnavailable(err)
	}

	page := &model.ActivityPage{
		Items:    items,
		Total:    total,
		Offset:   filter.Offset,
		PageSize: filter.PageSize,
	}
	if next := filter.Offset + len(items); len(items) > 0 && int64(next) < total {
		page.NextOffset = &next
	}
	return page, nil
}

// ListActivity is Query scoped to a single account.
func (s *Service) ListActivity(ctx context.Context, accountID uuid.UUID, filter model.ActivityFilter) (*model.ActivityPage, error) {
	filter.AccountID = &accountID
	return s.Query(ctx, filter)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
