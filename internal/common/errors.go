// Package common defines shared constants and sentinel errors used across
// the authgate server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorInactive     = errors.New("account is not active")
	ErrorMalformed    = errors.New("malformed request")

	// One-time token lifecycle errors.
	ErrorExpired       = errors.New("token expired")
	ErrAlreadyConsumed = errors.New("token already consumed")
	ErrAlreadyVerified = errors.New("account already verified")

	// Session token errors.
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token signature expired")
	ErrSubjectMismatch = errors.New("token subject mismatch")
)
