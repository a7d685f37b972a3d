package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/account-security/internal/model"
)

// LoginStateMutator edits a freshly loaded login state under the account's
// row lock. Returning an error aborts the update and leaves the row untouched.
type LoginStateMutator func(state *model.LoginState) error

// All repository interfaces in one file
type (
	// AccountRepository is the credential store.
	AccountRepository interface {
		Create(ctx context.Context, account *model.Account) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
		// GetByEmail returns (nil, nil) when no account matches.
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
		// UpdateLoginState applies fn atomically with respect to other
		// attempts on the same account and returns the committed state.
		UpdateLoginState(ctx context.Context, id uuid.UUID, fn LoginStateMutator) (*model.LoginState, error)
		// SetPassword replaces the active hash and pushes the previous one
		// onto the password history.
		SetPassword(ctx context.Context, id uuid.UUID, newHash string, now time.Time, opts model.SetPasswordOptions) error
		SetStatus(ctx context.Context, id uuid.UUID, status model.AccountStatus) error
	}

	// AuditRepository is the append-only activity log store.
	AuditRepository interface {
		Create(ctx context.Context, log *model.ActivityLog) error
		List(ctx context.Context, filter model.ActivityFilter) ([]*model.ActivityLog, int64, error)
		DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// ResetTokenRepository stores out-of-band password reset tokens.
	ResetTokenRepository interface {
		// Create stores token and invalidates older unused tokens of the account.
		Create(ctx context.Context, token *model.ResetToken) error
		Get(ctx context.Context, token string) (*model.ResetToken, error)
		// Consume marks token used if it is still usable at now.
		Consume(ctx context.Context, token string, now time.Time) (uuid.UUID, error)
	}

	// TokenBlacklist tracks revoked session tokens by id.
	TokenBlacklist interface {
		Revoke(ctx context.Context, tokenID string, until time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}
)
