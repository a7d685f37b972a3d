package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/account-security/internal/model"
)

func TestAuditListBuildsFilteredDescendingQuery(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAuditRepository(base)

	accountID := uuid.New()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := model.ActivityFilter{
		AccountID:  &accountID,
		Kind:       model.ActivityLoginFailed,
		From:       &from,
		Pagination: model.Pagination{Offset: 20, PageSize: 500},
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activity_logs WHERE account_id = $1 AND kind = $2 AND created_at >= $3")).
		WithArgs(accountID, model.ActivityLoginFailed, from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	createdAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5")).
		WithArgs(accountID, model.ActivityLoginFailed, from, model.MaxPageSize, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "organization_id", "kind", "description", "ip_address", "user_agent", "extra", "created_at",
		}).AddRow(uuid.New().String(), accountID.String(), uuid.New().String(), "login_failed", "bad password", "10.0.0.1", nil, []byte(`{"v":1,"fields":{"attempts":"3"}}`), createdAt))

	logs, total, err := repo.List(context.Background(), filter)

	require.NoError(t, err)
	assert.EqualValues(t, 42, total)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActivityLoginFailed, logs[0].Kind)
	assert.Equal(t, "3", logs[0].Extra.Get("attempts"))
	require.NotNil(t, logs[0].IPAddress)
	assert.Equal(t, "10.0.0.1", *logs[0].IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditDeleteBefore(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewAuditRepository(base)
	cutoff := time.Now().AddDate(0, 0, -90)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activity_logs WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	n, err := repo.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 17, n)
}
