package security

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

var (
	ErrHashingFailed = errors.New("password hashing failed")
)

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hashedPassword.
	Compare(hashedPassword, password string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// SecretWasUsed reports whether candidate matches the active hash or any
// entry of the account's password history. Hashes are salted, so membership
// is decided by comparison rather than string equality.
func SecretWasUsed(h PasswordHasher, acc *model.Account, candidate string) bool {
	return MatchesAny(h, acc.PasswordHash, acc.PasswordHistory, candidate)
}

// MatchesAny reports whether candidate matches current or any history entry.
func MatchesAny(h PasswordHasher, current string, history model.PasswordHistory, candidate string) bool {
	if current != "" && h.Compare(current, candidate) == nil {
		return true
	}
	for _, old := range history {
		if h.Compare(old, candidate) == nil {
			return true
		}
	}
	return false
}

// StrengthPolicy decides whether a candidate secret is acceptable.
type StrengthPolicy interface {
	Validate(password string) error
}

type policyValidator struct {
	policy model.PasswordPolicy
}

// NewStrengthPolicy returns a StrengthPolicy enforcing policy.
func NewStrengthPolicy(policy model.PasswordPolicy) StrengthPolicy {
	if policy.MinLength <= 0 {
		policy.MinLength = model.DefaultPasswordPolicy().MinLength
	}
	return &policyValidator{policy: policy}
}

func (v *policyValidator) Validate(password string) error {
	p := v.policy

	if len([]rune(password)) < p.MinLength {
		return apperrors.NewWeakSecret("password is too short")
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return apperrors.NewWeakSecret("password is too long")
	}

	lowered := strings.ToLower(password)
	for _, blocked := range p.BlockedPasswords {
		if lowered == strings.ToLower(blocked) {
			return apperrors.NewWeakSecret("password is too common")
		}
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(p.AllowedSpecialChars, r):
			special = true
		}
	}

	switch {
	case p.RequireUppercase && !upper:
		return apperrors.NewWeakSecret("password must contain an uppercase letter")
	case p.RequireLowercase && !lower:
		return apperrors.NewWeakSecret("password must contain a lowercase letter")
	case p.RequireNumbers && !digit:
		return apperrors.NewWeakSecret("password must contain a number")
	case p.RequireSpecialChars && !special:
		return apperrors.NewWeakSecret("password must contain a special character")
	}

	// entirely numeric passwords are rejected regardless of policy
	if digit && !upper && !lower && !special {
		return apperrors.NewWeakSecret("password cannot be entirely numeric")
	}
	return nil
}
