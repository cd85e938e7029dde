// Package common contains shared constants, sentinel errors and small
// helpers used across zkvault components.
package common

// AuthorizationHeaderName carries the bearer token on authenticated requests.
const AuthorizationHeaderName = "Authorization"

// AuthHashHexLength is the length of a client-derived auth hash (SHA-256, hex).
const AuthHashHexLength = 64

// Shared secret bounds.
const (
	MinSecretViews    = 1
	MaxSecretViews    = 10
	MinSecretTTLHours = 1
	MaxSecretTTLHours = 168
	MaxSecretBlobSize = 100 * 1024
)

// DefaultRetentionDays is how long soft-deleted vault entries survive before shredding.
const DefaultRetentionDays = 30
