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

type ResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*model.ResetToken
}

func NewResetTokenRepository() *ResetTokenRepository {
	return &ResetTokenRepository{tokens: make(map[string]*model.ResetToken)}
}

var _ repository.ResetTokenRepository = (*ResetTokenRepository)(nil)

func (r *ResetTokenRepository) Create(ctx context.Context, token *model.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.AccountID == token.AccountID && t.UsedAt == nil {
			used := token.CreatedAt
			t.UsedAt = &used
		}
	}
	stored := *token
	r.tokens[token.Token] = &stored
	return nil
}

func (r *ResetTokenRepository) Get(ctx context.Context, token string) (*model.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok {
		return nil, apperrors.NotFound("reset token", nil)
	}
	c := *t
	return &c, nil
}

func (r *ResetTokenRepository) Consume(ctx context.Context, token string, now time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || !t.Usable(now) {
		return uuid.Nil, apperrors.NewTokenInvalid(nil)
	}
	t.UsedAt = &now
	return t.AccountID, nil
}

// consumeFor marks token used only when it is usable and belongs to accountID.
func (r *ResetTokenRepository) consumeFor(token string, accountID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || !t.Usable(now) || t.AccountID != accountID {
		return apperrors.NewTokenInvalid(nil)
	}
	t.UsedAt = &now
	return nil
}
