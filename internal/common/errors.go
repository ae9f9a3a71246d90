// Package common defines shared constants and sentinel errors used across
// client and backend layers of Narrate. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidCSRF  = errors.New("invalid csrf token")

	// Token lifecycle errors. The message of ErrTokenExpired is part of the
	// wire contract: the client refreshes tokens when it sees it.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Sign-up errors.
	ErrInvalidOTP      = errors.New("invalid otp")
	ErrNotVerified     = errors.New("account not verified")
	ErrInvalidPassword = errors.New("invalid credentials")
)
