package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the service layer. Handlers translate these
// into response envelopes; anything not listed here is an internal error.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("refresh token invalid")
	ErrTokenExpired       = errors.New("refresh token expired")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrEmailTaken         = errors.New("email already registered")
	ErrCannotDeleteAdmin  = errors.New("admin account cannot be deleted")
	ErrInvalidPassword    = errors.New("current password does not match")
	ErrValidation         = errors.New("validation failed")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
