package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
	"github.com/jwalitptl/account-security/internal/service/audit"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
	"github.com/jwalitptl/account-security/pkg/security"
)

// DefaultModerationLock applies when a moderator locks without a duration.
const DefaultModerationLock = 24 * time.Hour

type Service struct {
	accounts repository.AccountRepository
	hasher   security.PasswordHasher
	strength security.StrengthPolicy
	auditor  *audit.Service
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(accounts repository.AccountRepository, hasher security.PasswordHasher, strength security.StrengthPolicy,
	auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		strength: strength,
		auditor:  auditor,
		logger:   logger.With().Str("component", "account").Logger(),
		now:      time.Now,
	}
}

// Register creates an account in the actor's organization with fresh
// security state.
func (s *Service) Register(ctx context.Context, actor model.Actor, req *model.RegisterAccountRequest, rc model.RequestContext) (*model.Account, error) {
	if !actor.Role.Can(model.CapManageAccounts) {
		return nil, apperrors.Forbidden(nil)
	}

	orgID := req.OrganizationID
	if orgID == uuid.Nil {
		orgID = actor.OrganizationID
	}
	if orgID != actor.OrganizationID {
		return nil, apperrors.Forbidden(fmt.Errorf("cannot register accounts in another organization"))
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), nil)
	}
	if err := s.strength.Validate(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	acc := model.NewAccount(model.NewAccountParams{
		OrganizationID:    orgID,
		Email:             req.Email,
		Name:              req.Name,
		PasswordHash:      hash,
		Role:              role,
		PreferredLanguage: req.PreferredLanguage,
	}, s.now().UTC())

	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("account_id", acc.ID.String()).
		Str("actor_id", actor.ID.String()).
		Str("role", string(role)).
		Msg("account registered")

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      actor.ID,
		OrganizationID: actor.OrganizationID,
		Kind:           model.ActivityAdminAction,
		Description:    fmt.Sprintf("registered account %s", acc.Email),
		Request:        rc,
		Extra:          model.Extra("action", "register", "target_id", acc.ID.String(), "role", string(role)),
	})
	return acc, nil
}

// EnsureAdmin creates the first administrator of an organization unless an
// account with that email already exists. It reports whether one was created.
func (s *Service) EnsureAdmin(ctx context.Context, orgID uuid.UUID, email, name, password string) (bool, error) {
	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := s.strength.Validate(password); err != nil {
		return false, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	acc := model.NewAccount(model.NewAccountParams{
		OrganizationID: orgID,
		Email:          email,
		Name:           name,
		PasswordHash:   hash,
		Role:           model.RoleAdmin,
	}, s.now().UTC())
	if err := s.accounts.Create(ctx, acc); err != nil {
		if apperrors.IsCode(err, apperrors.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info().Str("account_id", acc.ID.String()).Str("organization_id", orgID.String()).Msg("bootstrap admin created")
	return true, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// moderationTarget loads id and checks that actor may moderate it. Accounts of
// other organizations are reported as not found.
func (s *Service) moderationTarget(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Account, error) {
	if !actor.Role.Can(model.CapModerateAccounts) {
		return nil, apperrors.Forbidden(nil)
	}
	target, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.OrganizationID != actor.OrganizationID {
		return nil, apperrors.NotFound("account", nil)
	}
	if target.Role.Can(model.CapModerateAccounts) {
		return nil, apperrors.Forbidden(fmt.Errorf("cannot moderate staff accounts"))
	}
	return target, nil
}

// Unlock clears the failed counter and any lockout window.
func (s *Service) Unlock(ctx context.Context, actor model.Actor, id uuid.UUID, req model.ModerationRequest, rc model.RequestContext) error {
	target, err := s.moderationTarget(ctx, actor, id)
	if err != nil {
		return err
	}

	_, err = s.accounts.UpdateLoginState(ctx, target.ID, func(st *model.LoginState) error {
		st.FailedLoginAttempts = 0
		st.LockedUntil = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}

	actx := context.WithoutCancel(ctx)
	s.auditor.RecordBestEffort(actx, model.ActivityEntry{
		AccountID:      actor.ID,
		OrganizationID: actor.OrganizationID,
		Kind:           model.ActivityAdminAction,
		Description:    fmt.Sprintf("unlocked account %s", target.Email),
		Request:        rc,
		Extra:          model.Extra("action", "unlock", "target_id", target.ID.String(), "reason", req.Reason),
	})
	s.auditor.RecordBestEffort(actx, model.ActivityEntry{
		AccountID:      target.ID,
		OrganizationID: target.OrganizationID,
		Kind:           model.ActivityAccountUnlock,
		Description:    "account unlocked by moderator",
		Request:        rc,
		Extra:          model.Extra("actor_id", actor.ID.String(), "reason", req.Reason),
	})
	return nil
}

// Lock opens a lockout window on the target without touching its counter.
func (s *Service) Lock(ctx context.Context, actor model.Actor, id uuid.UUID, req model.ModerationRequest, rc model.RequestContext) (*time.Time, error) {
	target, err := s.moderationTarget(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	d := DefaultModerationLock
	if req.DurationMinutes > 0 {
		d = time.Duration(req.DurationMinutes) * time.Minute
	}
	until := s.now().Add(d)

	_, err = s.accounts.UpdateLoginState(ctx, target.ID, func(st *model.LoginState) error {
		st.LockedUntil = &until
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	actx := context.WithoutCancel(ctx)
	s.auditor.RecordBestEffort(actx, model.ActivityEntry{
		AccountID:      actor.ID,
		OrganizationID: actor.OrganizationID,
		Kind:           model.ActivityAdminAction,
		Description:    fmt.Sprintf("locked account %s", target.Email),
		Request:        rc,
		Extra:          model.Extra("action", "lock", "target_id", target.ID.String(), "reason", req.Reason),
	})
	s.auditor.RecordBestEffort(actx, model.ActivityEntry{
		AccountID:      target.ID,
		OrganizationID: target.OrganizationID,
		Kind:           model.ActivityAccountLock,
		Description:    fmt.Sprintf("account locked by moderator for %s", d),
		Request:        rc,
		Extra: model.Extra(
			"actor_id", actor.ID.String(),
			"reason", req.Reason,
			"locked_until", until.UTC().Format(time.RFC3339),
		),
	})
	return &until, nil
}

// Deactivate is the administrative soft delete. Admin accounts cannot be
// deactivated.
func (s *Service) Deactivate(ctx context.Context, actor model.Actor, id uuid.UUID, rc model.RequestContext) error {
	if !actor.Role.Can(model.CapManageAccounts) {
		return apperrors.Forbidden(nil)
	}
	target, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.OrganizationID != actor.OrganizationID {
		return apperrors.NotFound("account", nil)
	}
	if target.Role == model.RoleAdmin {
		return apperrors.Forbidden(fmt.Errorf("cannot deactivate admin accounts"))
	}

	if err := s.accounts.SetStatus(ctx, target.ID, model.AccountStatusInactive); err != nil {
		return err
	}

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      actor.ID,
		OrganizationID: actor.OrganizationID,
		Kind:           model.ActivityAdminAction,
		Description:    fmt.Sprintf("deactivated account %s", target.Email),
		Request:        rc,
		Extra:          model.Extra("action", "deactivate", "target_id", target.ID.String()),
	})
	return nil
}

// DeactivateSelf lets an account close itself after confirming its password.
func (s *Service) DeactivateSelf(ctx context.Context, accountID uuid.UUID, password string, rc model.RequestContext) error {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Role == model.RoleAdmin {
		return apperrors.Forbidden(fmt.Errorf("admins cannot deactivate their own account"))
	}
	if err := s.hasher.Compare(acc.PasswordHash, password); err != nil {
		return apperrors.InvalidCredentials
	}

	if err := s.accounts.SetStatus(ctx, acc.ID, model.AccountStatusInactive); err != nil {
		return err
	}

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Kind:           model.ActivityProfileUpdate,
		Description:    "account deactivated by its owner",
		Request:        rc,
		Extra:          model.Extra("action", "deactivate"),
	})
	return nil
}

// PasswordHistory summarises credential history without exposing hashes.
func (s *Service) PasswordHistory(ctx context.Context, accountID uuid.UUID) (*model.PasswordHistorySummary, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &model.PasswordHistorySummary{
		Entries:             len(acc.PasswordHistory),
		MaxEntries:          model.MaxPasswordHistory,
		PasswordChangedAt:   acc.PasswordChangedAt,
		ForcePasswordChange: acc.ForcePasswordChange,
	}, nil
}
