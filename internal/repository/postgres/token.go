package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

type resetTokenRepository struct {
	BaseRepository
}

func NewResetTokenRepository(base BaseRepository) repository.ResetTokenRepository {
	return &resetTokenRepository{base}
}

func (r *resetTokenRepository) Create(ctx context.Context, token *model.ResetToken) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE password_reset_tokens SET used_at = $2
			WHERE account_id = $1 AND used_at IS NULL
		`, token.AccountID, token.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to invalidate previous tokens: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO password_reset_tokens (token, account_id, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
		`, token.Token, token.AccountID, token.ExpiresAt, token.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to store reset token: %w", err)
		}
		return nil
	})
}

func (r *resetTokenRepository) Get(ctx context.Context, token string) (*model.ResetToken, error) {
	var t model.ResetToken
	err := r.db.GetContext(ctx, &t, `
		SELECT token, account_id, expires_at, used_at, created_at
		FROM password_reset_tokens WHERE token = $1
	`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("reset token", err)
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return &t, nil
}

func (r *resetTokenRepository) Consume(ctx context.Context, token string, now time.Time) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := r.db.GetContext(ctx, &accountID, `
		UPDATE password_reset_tokens SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING account_id
	`, token, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, apperrors.NewTokenInvalid(err)
		}
		return uuid.Nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return accountID, nil
}
