package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

const uniqueViolation = "23505"

const accountColumns = `
	id, organization_id, email, name, password_hash, role, status, preferred_language,
	failed_login_attempts, locked_until, last_login_at, last_login_ip, password_changed_at,
	password_history, force_password_change, version, created_at, updated_at`

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.OrganizationID,
		model.NormalizeEmail(account.Email),
		account.Name,
		account.PasswordHash,
		account.Role,
		account.Status,
		account.PreferredLanguage,
		account.FailedLoginAttempts,
		account.LockedUntil,
		account.LastLoginAt,
		account.LastLoginIP,
		account.PasswordChangedAt,
		account.PasswordHistory,
		account.ForcePasswordChange,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.New(apperrors.ErrConflict, "account already exists", err)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var account model.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("account", err)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	var account model.Account
	if err := r.db.GetContext(ctx, &account, query, model.NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) UpdateLoginState(ctx context.Context, id uuid.UUID, fn repository.LoginStateMutator) (*model.LoginState, error) {
	var committed *model.LoginState

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var state model.LoginState
		err := tx.GetContext(ctx, &state, `
			SELECT failed_login_attempts, locked_until, last_login_at, last_login_ip, status
			FROM accounts WHERE id = $1 FOR UPDATE
		`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.NotFound("account", err)
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}

		if err := fn(&state); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE accounts
			SET failed_login_attempts = $1, locked_until = $2, last_login_at = $3, last_login_ip = $4,
				version = version + 1, updated_at = NOW()
			WHERE id = $5
		`, state.FailedLoginAttempts, state.LockedUntil, state.LastLoginAt, state.LastLoginIP, id)
		if err != nil {
			return fmt.Errorf("failed to update login state: %w", err)
		}

		committed = &state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func (r *accountRepository) SetPassword(ctx context.Context, id uuid.UUID, newHash string, now time.Time, opts model.SetPasswordOptions) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var (
			current string
			history model.PasswordHistory
		)
		err := tx.QueryRowxContext(ctx, `
			SELECT password_hash, password_history FROM accounts WHERE id = $1 FOR UPDATE
		`, id).Scan(&current, &history)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.NotFound("account", err)
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}

		if newHash == current || history.Contains(newHash) {
			return apperrors.SecretReuse
		}
		if opts.Check != nil {
			if err := opts.Check(current, history); err != nil {
				return err
			}
		}
		if opts.ResetToken != "" {
			var owner uuid.UUID
			err := tx.GetContext(ctx, &owner, `
				UPDATE password_reset_tokens SET used_at = $3
				WHERE token = $1 AND account_id = $2 AND used_at IS NULL AND expires_at > $3
				RETURNING account_id
			`, opts.ResetToken, id, now)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperrors.NewTokenInvalid(err)
				}
				return fmt.Errorf("failed to consume reset token: %w", err)
			}
		}
		if current != "" {
			history = history.Push(current)
		}

		query := `
			UPDATE accounts
			SET password_hash = $1, password_history = $2, password_changed_at = $3,
				force_password_change = $4, version = version + 1, updated_at = $3`
		if opts.ClearLockout {
			query += `, failed_login_attempts = 0, locked_until = NULL`
		}
		query += ` WHERE id = $5`

		if _, err := tx.ExecContext(ctx, query, newHash, history, now, opts.ForceChange, id); err != nil {
			return fmt.Errorf("failed to set password: %w", err)
		}
		return nil
	})
}

func (r *accountRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.AccountStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET status = $1, version = version + 1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("account", nil)
	}
	return nil
}
