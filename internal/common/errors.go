// Package common defines shared constants and sentinel errors used across
// the server layers of zkvault. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrLocked     = errors.New("record locked")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// State conflicts surfaced to clients with a specific status.
	ErrConflict           = errors.New("concurrent access")
	ErrExpired            = errors.New("expired")
	ErrPassphraseRequired = errors.New("passphrase required")
	ErrPassphraseInvalid  = errors.New("passphrase invalid")

	// Credential and session management errors.
	ErrDuressEqualsMaster  = errors.New("duress hash must differ from master hash")
	ErrCannotRevokeCurrent = errors.New("cannot revoke current session, use logout")
	ErrUsernameTaken       = errors.New("username already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
