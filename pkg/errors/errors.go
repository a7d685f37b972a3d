package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
)

// Account security error codes
const (
	ErrInvalidCredentials ErrorCode = iota + 2000
	ErrAccountLocked
	ErrAccountInactive
	ErrSecretReuse
	ErrWeakSecret
	ErrAuditUnavailable
	ErrTokenInvalidOrExpired
	ErrConflict
)

// Sentinels for errors.Is comparisons. Wrap them with the constructors below
// to attach a cause.
var (
	InvalidCredentials    = &AppError{Code: ErrInvalidCredentials, Message: "invalid credentials"}
	AccountLocked         = &AppError{Code: ErrAccountLocked, Message: "account is locked"}
	AccountInactive       = &AppError{Code: ErrAccountInactive, Message: "account is inactive"}
	SecretReuse           = &AppError{Code: ErrSecretReuse, Message: "password was used recently"}
	WeakSecret            = &AppError{Code: ErrWeakSecret, Message: "password does not meet policy"}
	AuditUnavailable      = &AppError{Code: ErrAuditUnavailable, Message: "audit log unavailable"}
	TokenInvalidOrExpired = &AppError{Code: ErrTokenInvalidOrExpired, Message: "token is invalid or expired"}
	ResourceNotFound      = &AppError{Code: ErrNotFound, Message: "not found"}
	Conflict              = &AppError{Code: ErrConflict, Message: "conflict"}
)

// New builds an AppError with the given code.
func New(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewWeakSecret(reason string) *AppError {
	return &AppError{
		Code:    ErrWeakSecret,
		Message: reason,
	}
}

func NewAuditUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrAuditUnavailable,
		Message: AuditUnavailable.Message,
		Err:     err,
	}
}

func NewTokenInvalid(err error) *AppError {
	return &AppError{
		Code:    ErrTokenInvalidOrExpired,
		Message: TokenInvalidOrExpired.Message,
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "forbidden",
		Err:     err,
	}
}

// IsCode reports whether err wraps an AppError with code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// HTTPStatus maps an error to a transport status code.
func HTTPStatus(err error) int {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrWeakSecret, ErrSecretReuse:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidCredentials, ErrTokenInvalidOrExpired:
		return http.StatusUnauthorized
	case ErrAccountLocked:
		return http.StatusLocked
	case ErrForbidden, ErrAccountInactive:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrAuditUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to clients.
func PublicMessage(err error) string {
	var appErr *AppError
	if !stderrors.As(err, &appErr) || appErr.Code == ErrInternal {
		return "internal server error"
	}
	return appErr.Message
}
