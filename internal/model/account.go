package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxPasswordHistory bounds how many previous hashes an account remembers.
const MaxPasswordHistory = 5

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Account is an authenticatable identity together with its lockout state and
// credential history.
type Account struct {
	Base
	OrganizationID      uuid.UUID       `json:"organization_id" db:"organization_id"`
	Email               string          `json:"email" db:"email"`
	Name                string          `json:"name" db:"name"`
	PasswordHash        string          `json:"-" db:"password_hash"`
	Role                Role            `json:"role" db:"role"`
	Status              AccountStatus   `json:"status" db:"status"`
	PreferredLanguage   string          `json:"preferred_language" db:"preferred_language"`
	FailedLoginAttempts int             `json:"failed_login_attempts" db:"failed_login_attempts"`
	LockedUntil         *time.Time      `json:"locked_until,omitempty" db:"locked_until"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty" db:"last_login_at"`
	LastLoginIP         *string         `json:"last_login_ip,omitempty" db:"last_login_ip"`
	PasswordChangedAt   *time.Time      `json:"password_changed_at,omitempty" db:"password_changed_at"`
	PasswordHistory     PasswordHistory `json:"-" db:"password_history"`
	ForcePasswordChange bool            `json:"force_password_change" db:"force_password_change"`
	Version             int64           `json:"-" db:"version"`
}

// NewAccountParams are the inputs to NewAccount.
type NewAccountParams struct {
	OrganizationID    uuid.UUID
	Email             string
	Name              string
	PasswordHash      string
	Role              Role
	PreferredLanguage string
}

// NewAccount builds an active account with its security state initialised:
// empty history, zero counter, no lock.
func NewAccount(p NewAccountParams, now time.Time) *Account {
	lang := p.PreferredLanguage
	if lang == "" {
		lang = "pt-br"
	}
	changed := now
	return &Account{
		Base: Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrganizationID:    p.OrganizationID,
		Email:             NormalizeEmail(p.Email),
		Name:              p.Name,
		PasswordHash:      p.PasswordHash,
		Role:              p.Role,
		Status:            AccountStatusActive,
		PreferredLanguage: lang,
		PasswordChangedAt: &changed,
		PasswordHistory:   PasswordHistory{},
		Version:           1,
	}
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// NormalizeEmail is the canonical form used for identifier lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoginState is the slice of an account mutated atomically by login attempts.
type LoginState struct {
	FailedLoginAttempts int           `db:"failed_login_attempts"`
	LockedUntil         *time.Time    `db:"locked_until"`
	LastLoginAt         *time.Time    `db:"last_login_at"`
	LastLoginIP         *string       `db:"last_login_ip"`
	Status              AccountStatus `db:"status"`
}

// SetPasswordOptions tune SetPassword.
type SetPasswordOptions struct {
	// ClearLockout also zeroes the failed counter and lock expiry.
	ClearLockout bool
	// ForceChange sets the force-change flag to this value.
	ForceChange bool
	// Check runs under the row lock against the stored credentials before
	// anything is written. An error aborts the change.
	Check func(currentHash string, history PasswordHistory) error
	// ResetToken is the digest of a reset token to consume in the same
	// atomic step. A used, expired or foreign token aborts the change.
	ResetToken string
}

// PasswordHistorySummary is the client-facing view of credential history.
type PasswordHistorySummary struct {
	Entries             int        `json:"entries"`
	MaxEntries          int        `json:"max_entries"`
	PasswordChangedAt   *time.Time `json:"password_changed_at,omitempty"`
	ForcePasswordChange bool       `json:"force_password_change"`
}

type RegisterAccountRequest struct {
	// OrganizationID defaults to the caller's organization.
	OrganizationID    uuid.UUID `json:"organization_id"`
	Email             string    `json:"email" binding:"required,email"`
	Name              string    `json:"name" binding:"required"`
	Password          string    `json:"password" binding:"required,password"`
	Role              string    `json:"role" binding:"required,role"`
	PreferredLanguage string    `json:"preferred_language" binding:"omitempty,max=10"`
}

type DeactivateRequest struct {
	Password string `json:"password" binding:"required"`
}

type ModerationRequest struct {
	Reason          string `json:"reason" binding:"max=500"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=1,max=43200"`
}

// Actor identifies who performs an administrative action.
type Actor struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Role           Role
}
