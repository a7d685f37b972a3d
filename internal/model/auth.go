package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthRequest types
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,password"`
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims represents JWT claims. Secrets and history never appear here.
type TokenClaims struct {
	jwt.RegisteredClaims
	AccountID      uuid.UUID `json:"account_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	Locale         string    `json:"locale"`
	TokenType      TokenType `json:"token_type"`
}

// TokenValidation answers whether a presented access token is still good.
type TokenValidation struct {
	Valid     bool         `json:"valid"`
	Account   TokenSubject `json:"account"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// TokenSubject is the identity a token was issued to.
type TokenSubject struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	Locale         string    `json:"locale"`
}

// Validation describes c as seen by a client checking its session.
func (c *TokenClaims) Validation() TokenValidation {
	v := TokenValidation{
		Valid: true,
		Account: TokenSubject{
			ID:             c.AccountID,
			OrganizationID: c.OrganizationID,
			Email:          c.Email,
			Role:           c.Role,
			Locale:         c.Locale,
		},
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time.UTC()
		v.ExpiresAt = &exp
	}
	return v
}

// ResetToken is an out-of-band password reset credential.
type ResetToken struct {
	Token     string     `db:"token"`
	AccountID uuid.UUID  `db:"account_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

func (t *ResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
