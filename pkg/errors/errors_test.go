package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", New(ErrAccountLocked, "locked until later", nil))

	assert.True(t, stderrors.Is(wrapped, AccountLocked))
	assert.False(t, stderrors.Is(wrapped, InvalidCredentials))
	assert.True(t, IsCode(wrapped, ErrAccountLocked))
}

func TestAppErrorUnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewAuditUnavailable(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, AuditUnavailable))
	assert.Equal(t, "audit log unavailable: connection refused", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid credentials", InvalidCredentials, http.StatusUnauthorized},
		{"locked", AccountLocked, http.StatusLocked},
		{"inactive", AccountInactive, http.StatusForbidden},
		{"reuse", SecretReuse, http.StatusBadRequest},
		{"weak", NewWeakSecret("too short"), http.StatusBadRequest},
		{"not found", NotFound("account", nil), http.StatusNotFound},
		{"token", NewTokenInvalid(nil), http.StatusUnauthorized},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(stderrors.New("pq: relation missing")))
	assert.Equal(t, "internal server error", PublicMessage(Internal(stderrors.New("pq: relation missing"))))
	assert.Equal(t, "password was used recently", PublicMessage(SecretReuse))
}
