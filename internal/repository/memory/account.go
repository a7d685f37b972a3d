// Package memory holds in-process repositories for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*model.Account
	byEmail  map[string]uuid.UUID
	resets   *ResetTokenRepository
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[uuid.UUID]*model.Account),
		byEmail:  make(map[string]uuid.UUID),
		resets:   NewResetTokenRepository(),
	}
}

// ResetTokens returns the token store SetPassword consumes reset tokens from.
func (r *AccountRepository) ResetTokens() *ResetTokenRepository {
	return r.resets
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := model.NormalizeEmail(account.Email)
	if _, exists := r.byEmail[email]; exists {
		return apperrors.New(apperrors.ErrConflict, "account already exists", nil)
	}

	stored := cloneAccount(account)
	stored.Email = email
	r.accounts[stored.ID] = stored
	r.byEmail[email] = stored.ID
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account", nil)
	}
	return cloneAccount(acc), nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return cloneAccount(r.accounts[id]), nil
}

func (r *AccountRepository) UpdateLoginState(ctx context.Context, id uuid.UUID, fn repository.LoginStateMutator) (*model.LoginState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account", nil)
	}

	state := model.LoginState{
		FailedLoginAttempts: acc.FailedLoginAttempts,
		LockedUntil:         copyTime(acc.LockedUntil),
		LastLoginAt:         copyTime(acc.LastLoginAt),
		LastLoginIP:         copyString(acc.LastLoginIP),
		Status:              acc.Status,
	}
	if err := fn(&state); err != nil {
		return nil, err
	}

	acc.FailedLoginAttempts = state.FailedLoginAttempts
	acc.LockedUntil = copyTime(state.LockedUntil)
	acc.LastLoginAt = copyTime(state.LastLoginAt)
	acc.LastLoginIP = copyString(state.LastLoginIP)
	acc.Version++
	acc.UpdatedAt = time.Now()
	return &state, nil
}

func (r *AccountRepository) SetPassword(ctx context.Context, id uuid.UUID, newHash string, now time.Time, opts model.SetPasswordOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	acc, ok := r.accounts[id]
	if !ok {
		return apperrors.NotFound("account", nil)
	}
	if newHash == acc.PasswordHash || acc.PasswordHistory.Contains(newHash) {
		return apperrors.SecretReuse
	}
	if opts.Check != nil {
		if err := opts.Check(acc.PasswordHash, append(model.PasswordHistory(nil), acc.PasswordHistory...)); err != nil {
			return err
		}
	}
	if opts.ResetToken != "" {
		if err := r.resets.consumeFor(opts.ResetToken, id, now); err != nil {
			return err
		}
	}

	if acc.PasswordHash != "" {
		acc.PasswordHistory = acc.PasswordHistory.Push(acc.PasswordHash)
	}
	acc.PasswordHash = newHash
	acc.PasswordChangedAt = &now
	acc.ForcePasswordChange = opts.ForceChange
	if opts.ClearLockout {
		acc.FailedLoginAttempts = 0
		acc.LockedUntil = nil
	}
	acc.Version++
	acc.UpdatedAt = now
	return nil
}

func (r *AccountRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[id]
	if !ok {
		return apperrors.NotFound("account", nil)
	}
	acc.Status = status
	acc.Version++
	acc.UpdatedAt = time.Now()
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.LockedUntil = copyTime(a.LockedUntil)
	c.LastLoginAt = copyTime(a.LastLoginAt)
	c.LastLoginIP = copyString(a.LastLoginIP)
	c.PasswordChangedAt = copyTime(a.PasswordChangedAt)
	c.PasswordHistory = append(model.PasswordHistory(nil), a.PasswordHistory...)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
