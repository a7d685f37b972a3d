package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/account-security/internal/email"
	"github.com/jwalitptl/account-security/internal/lockout"
	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
	"github.com/jwalitptl/account-security/internal/service/audit"
	"github.com/jwalitptl/account-security/pkg/auth"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
	"github.com/jwalitptl/account-security/pkg/messaging"
	"github.com/jwalitptl/account-security/pkg/metrics"
	"github.com/jwalitptl/account-security/pkg/security"
)

const (
	defaultResetTokenTTL = time.Hour
	resetTokenBytes      = 32

	// EventAccountLocked is published when a lockout window opens.
	EventAccountLocked = "account_lock"
)

// Deps wires the collaborators of Service.
type Deps struct {
	Accounts      repository.AccountRepository
	ResetTokens   repository.ResetTokenRepository
	Blacklist     repository.TokenBlacklist
	Hasher        security.PasswordHasher
	Strength      security.StrengthPolicy
	Lockout       *lockout.Policy
	Tokens        auth.JWTService
	Email         email.Service
	Auditor       *audit.Service
	Events        messaging.Publisher
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	ResetTokenTTL time.Duration
}

type Service struct {
	accounts    repository.AccountRepository
	resetTokens repository.ResetTokenRepository
	blacklist   repository.TokenBlacklist
	hasher      security.PasswordHasher
	strength    security.StrengthPolicy
	lockout     *lockout.Policy
	tokens      auth.JWTService
	email       email.Service
	auditor     *audit.Service
	events      messaging.Publisher
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	resetTTL    time.Duration
	now         func() time.Time

	// dummyHash is compared against when no account matches, so unknown
	// identifiers cost the same as wrong passwords.
	dummyHash string
}

func NewService(d Deps) (*Service, error) {
	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	s := &Service{
		accounts:    d.Accounts,
		resetTokens: d.ResetTokens,
		blacklist:   d.Blacklist,
		hasher:      d.Hasher,
		strength:    d.Strength,
		lockout:     d.Lockout,
		tokens:      d.Tokens,
		email:       d.Email,
		auditor:     d.Auditor,
		events:      d.Events,
		metrics:     d.Metrics,
		logger:      d.Logger.With().Str("component", "auth").Logger(),
		resetTTL:    d.ResetTokenTTL,
		now:         time.Now,
		dummyHash:   dummy,
	}
	if s.lockout == nil {
		s.lockout = lockout.NewPolicy(nil)
	}
	if s.events == nil {
		s.events = messaging.NopPublisher()
	}
	if s.resetTTL <= 0 {
		s.resetTTL = defaultResetTokenTTL
	}
	return s, nil
}

// Authenticate runs one login attempt and returns a session on success.
//
// Outcomes, in order: unknown identifier, locked account, wrong secret,
// inactive account, success. A locked account is refused before the secret
// is checked and the attempt leaves no trace.
func (s *Service) Authenticate(ctx context.Context, email, password string, rc model.RequestContext) (*model.TokenPair, error) {
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil {
		_ = s.hasher.Compare(s.dummyHash, password)
		s.metrics.LoginAttempts.WithLabelValues("unknown").Inc()
		return nil, apperrors.InvalidCredentials
	}

	now := s.now()
	if lockout.IsLocked(now, acc.LockedUntil) {
		s.metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, apperrors.AccountLocked
	}

	if !s.verify(acc.PasswordHash, password) {
		return nil, s.recordFailure(ctx, acc, now, rc)
	}

	if !acc.IsActive() {
		s.metrics.LoginAttempts.WithLabelValues("inactive").Inc()
		s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
			AccountID:      acc.ID,
			OrganizationID: acc.OrganizationID,
			Kind:           model.ActivityLoginFailed,
			Description:    "login refused: account is inactive",
			Request:        rc,
			Extra:          model.Extra("reason", "inactive"),
		})
		return nil, apperrors.AccountInactive
	}

	state, err := s.accounts.UpdateLoginState(ctx, acc.ID, func(st *model.LoginState) error {
		// another attempt may have locked or deactivated the account since we read it
		if lockout.IsLocked(now, st.LockedUntil) {
			return apperrors.AccountLocked
		}
		if st.Status != model.AccountStatusActive {
			return apperrors.AccountInactive
		}
		st.FailedLoginAttempts = 0
		st.LockedUntil = nil
		st.LastLoginAt = &now
		st.LastLoginIP = optional(rc.IPAddress)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.AccountLocked) {
			s.metrics.LoginAttempts.WithLabelValues("locked").Inc()
			return nil, err
		}
		if errors.Is(err, apperrors.AccountInactive) {
			s.metrics.LoginAttempts.WithLabelValues("inactive").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	acc.FailedLoginAttempts = state.FailedLoginAttempts
	acc.LockedUntil = state.LockedUntil
	acc.LastLoginAt = state.LastLoginAt
	acc.LastLoginIP = state.LastLoginIP

	tokens, err := s.tokens.GenerateTokenPair(acc)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Kind:           model.ActivityLogin,
		Description:    "login succeeded",
		Request:        rc,
	})
	return tokens, nil
}

func (s *Service) verify(hash, password string) bool {
	start := time.Now()
	err := s.hasher.Compare(hash, password)
	s.metrics.HashDuration.Observe(time.Since(start).Seconds())
	return err == nil
}

// recordFailure increments the failed counter under the row lock and opens a
// lockout window when a band is reached.
func (s *Service) recordFailure(ctx context.Context, acc *model.Account, now time.Time, rc model.RequestContext) error {
	var opened *time.Time
	state, err := s.accounts.UpdateLoginState(ctx, acc.ID, func(st *model.LoginState) error {
		if lockout.IsLocked(now, st.LockedUntil) {
			return apperrors.AccountLocked
		}
		st.FailedLoginAttempts++
		if until := s.lockout.LockedUntil(now, st.FailedLoginAttempts); until != nil {
			st.LockedUntil = until
			opened = until
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.AccountLocked) {
			s.metrics.LoginAttempts.WithLabelValues("locked").Inc()
			return apperrors.AccountLocked
		}
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	s.metrics.LoginAttempts.WithLabelValues("failure").Inc()

	// the increment is committed; its events must not be lost to a cancelled request
	actx := context.WithoutCancel(ctx)
	attempts := fmt.Sprintf("%d", state.FailedLoginAttempts)
	s.auditor.RecordBestEffort(actx, model.ActivityEntry{
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Kind:           model.ActivityLoginFailed,
		Description:    "login failed: invalid credentials",
		Request:        rc,
		Extra: model.Extra(
			"reason", "invalid_credentials",
			"failed_attempts", attempts,
			"remaining_attempts", fmt.Sprintf("%d", s.lockout.RemainingAttempts(state.FailedLoginAttempts)),
		),
	})

	if opened != nil {
		d := opened.Sub(now)
		s.metrics.AccountLockouts.WithLabelValues(d.String()).Inc()
		s.auditor.RecordBestEffort(actx, model.ActivityEntry{
			AccountID:      acc.ID,
			OrganizationID: acc.OrganizationID,
			Kind:           model.ActivityAccountLock,
			Description:    fmt.Sprintf("account locked for %s after %s failed attempts", d, attempts),
			Request:        rc,
			Extra: model.Extra(
				"failed_attempts", attempts,
				"locked_until", opened.UTC().Format(time.RFC3339),
			),
		})
		s.publishLock(actx, acc, state.FailedLoginAttempts, *opened)
	}

	return apperrors.InvalidCredentials
}

func (s *Service) publishLock(ctx context.Context, acc *model.Account, attempts int, until time.Time) {
	err := s.events.Publish(ctx, EventAccountLocked, map[string]interface{}{
		"account_id":      acc.ID,
		"organization_id": acc.OrganizationID,
		"email":           acc.Email,
		"locale":          acc.PreferredLanguage,
		"failed_attempts": attempts,
		"locked_until":    until.UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("account_id", acc.ID.String()).Msg("failed to publish lock event")
	}
}

// ChangePassword replaces the secret of an authenticated account. The
// current secret and the reuse rule are checked against the locked row, so
// concurrent changes cannot both pass on a stale read.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string, rc model.RequestContext) error {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.strength.Validate(next); err != nil {
		if !s.verify(acc.PasswordHash, current) {
			s.metrics.PasswordChanges.WithLabelValues("change", "invalid_credentials").Inc()
			return apperrors.InvalidCredentials
		}
		s.metrics.PasswordChanges.WithLabelValues("change", "weak").Inc()
		return err
	}

	err = s.storeSecret(ctx, acc.ID, next, "change", model.SetPasswordOptions{
		Check: func(currentHash string, history model.PasswordHistory) error {
			if !s.verify(currentHash, current) {
				return apperrors.InvalidCredentials
			}
			return s.reuseCheck(currentHash, history, next)
		},
	})
	if err != nil {
		return err
	}

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Kind:           model.ActivityPasswordChange,
		Description:    "password changed",
		Request:        rc,
	})
	return nil
}

func (s *Service) reuseCheck(currentHash string, history model.PasswordHistory, next string) error {
	if security.MatchesAny(s.hasher, currentHash, history, next) {
		return apperrors.SecretReuse
	}
	return nil
}

// storeSecret hashes next and hands it to SetPassword. opts.Check runs under
// the row lock.
func (s *Service) storeSecret(ctx context.Context, id uuid.UUID, next, flow string, opts model.SetPasswordOptions) error {
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperrors.Internal(err)
	}

	err = s.accounts.SetPassword(ctx, id, hash, s.now(), opts)
	switch {
	case err == nil:
		s.metrics.PasswordChanges.WithLabelValues(flow, "ok").Inc()
	case errors.Is(err, apperrors.InvalidCredentials):
		s.metrics.PasswordChanges.WithLabelValues(flow, "invalid_credentials").Inc()
	case errors.Is(err, apperrors.SecretReuse):
		s.metrics.PasswordChanges.WithLabelValues(flow, "reused").Inc()
	case apperrors.IsCode(err, apperrors.ErrTokenInvalidOrExpired):
		s.metrics.PasswordChanges.WithLabelValues(flow, "invalid_token").Inc()
	default:
		s.metrics.PasswordChanges.WithLabelValues(flow, "error").Inc()
	}
	return err
}

// RequestPasswordReset mails a one-time reset link to an active account.
// It always returns nil so callers cannot learn which identifiers exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, rc model.RequestContext) error {
	s.metrics.ResetRequests.Inc()

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to look up account for password reset")
		return nil
	}
	if acc == nil || !acc.IsActive() {
		return nil
	}

	raw, err := newResetToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate reset token")
		return nil
	}

	now := s.now()
	token := &model.ResetToken{
		Token:     digest(raw),
		AccountID: acc.ID,
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.resetTokens.Create(ctx, token); err != nil {
		s.logger.Error().Err(err).Str("account_id", acc.ID.String()).Msg("failed to store reset token")
		return nil
	}

	if err := s.email.SendPasswordReset(ctx, acc.Email, acc.Name, raw, token.ExpiresAt); err != nil {
		s.logger.Error().Err(err).Str("account_id", acc.ID.String()).Msg("failed to send reset email")
	}

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Kind:           model.ActivityPasswordResetRequest,
		Description:    "password reset requested",
		Request:        rc,
	})
	return nil
}

// CompletePasswordReset sets a new secret using a mailed reset token and
// clears any lockout on the account.
func (s *Service) CompletePasswordReset(ctx context.Context, token, next string, rc model.RequestContext) error {
	key := digest(token)
	now := s.now()

	rt, err := s.resetTokens.Get(ctx, key)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return apperrors.NewTokenInvalid(err)
		}
		return err
	}
	if !rt.Usable(now) {
		return apperrors.TokenInvalidOrExpired
	}

	acc, err := s.accounts.GetByID(ctx, rt.AccountID)
	if err != nil {
		return err
	}
	if !acc.IsActive() {
		return apperrors.AccountInactive
	}
	if err := s.strength.Validate(next); err != nil {
		s.metrics.PasswordChanges.WithLabelValues("reset", "weak").Inc()
		return err
	}

	// the token is consumed together with the write: a rejected secret or a
	// failed write leaves it usable, and of two concurrent resets only one wins
	err = s.storeSecret(ctx, acc.ID, next, "reset", model.SetPasswordOptions{
		ClearLockout: true,
		ResetToken:   key,
		Check: func(currentHash string, history model.PasswordHistory) error {
			return s.reuseCheck(currentHash, history, next)
		},
	})
	if err != nil {
		return err
	}

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Kind:           model.ActivityPasswordReset,
		Description:    "password reset completed",
		Request:        rc,
	})
	return nil
}

// Logout revokes the access token and, when given, the refresh token.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string, rc model.RequestContext) error {
	claims, err := s.ValidateToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}

	if refreshToken != "" {
		if refresh, err := s.tokens.ValidateRefreshToken(refreshToken); err == nil && refresh.AccountID == claims.AccountID {
			if err := s.revoke(ctx, refresh); err != nil {
				return err
			}
		}
	}

	s.auditor.RecordBestEffort(context.WithoutCancel(ctx), model.ActivityEntry{
		AccountID:      claims.AccountID,
		OrganizationID: claims.OrganizationID,
		Kind:           model.ActivityLogout,
		Description:    "logged out",
		Request:        rc,
	})
	return nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is
// revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}

	acc, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewTokenInvalid(err)
		}
		return nil, err
	}
	if !acc.IsActive() {
		return nil, apperrors.AccountInactive
	}
	if lockout.IsLocked(s.now(), acc.LockedUntil) {
		return nil, apperrors.AccountLocked
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	tokens, err := s.tokens.GenerateTokenPair(acc)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return tokens, nil
}

// ValidateToken checks an access token's signature, expiry and revocation.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Service) checkRevoked(ctx context.Context, claims *model.TokenClaims) error {
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.metrics.RedisOperations.WithLabelValues("is_revoked", "error").Inc()
		return apperrors.Internal(err)
	}
	s.metrics.RedisOperations.WithLabelValues("is_revoked", "ok").Inc()
	if revoked {
		return apperrors.NewTokenInvalid(errors.New("token revoked"))
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, claims *model.TokenClaims) error {
	if claims.ExpiresAt == nil {
		return apperrors.NewTokenInvalid(errors.New("token has no expiry"))
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.metrics.RedisOperations.WithLabelValues("revoke", "error").Inc()
		return apperrors.Internal(err)
	}
	s.metrics.RedisOperations.WithLabelValues("revoke", "ok").Inc()
	return nil
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// digest is the form a reset token is stored under.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
