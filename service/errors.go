package service

import (
	"github.com/Laisky/errors/v2"
)

// Error kinds. Callers classify with errors.Is; the transport maps each kind
// to a status code.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrFileLocked          = errors.New("file is locked")
	ErrWrongUnlockPassword = errors.New("wrong unlock password")
	ErrNotConfigured       = errors.New("not configured")
)

// Token failure details. Each one also matches ErrInvalidToken.
var (
	ErrTokenMissing        = &tokenError{reason: "no token provided"}
	ErrTokenExpired        = &tokenError{reason: "token expired"}
	ErrTokenMalformed      = &tokenError{reason: "malformed token"}
	ErrTokenWrongType      = &tokenError{reason: "invalid token type"}
	ErrSecretNotConfigured = &tokenError{reason: "signing secret not configured"}
)

type tokenError struct {
	reason string
}

func (e *tokenError) Error() string { return e.reason }

func (e *tokenError) Unwrap() error { return ErrInvalidToken }

// Error carries a client-facing message alongside its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}
