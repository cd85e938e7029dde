// Package models defines server-side records persisted in the database.
package models

import "time"

// Account is the credential record of one user. Auth hashes are lowercase
// hex digests derived on the client; the server never sees a password or a
// key able to decrypt vault content.
type Account struct {
	ID             string
	UserName       string
	MasterAuthHash string
	EncryptionSalt []byte
	DuressAuthHash string
	DuressSalt     []byte
	SOSContact     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasDuress reports whether a duress credential is configured.
func (a *Account) HasDuress() bool {
	return a.DuressAuthHash != ""
}

// LoginEvent is an append-only audit record of one login attempt.
// Duress logins are recorded as plain successes.
type LoginEvent struct {
	ID        string
	AccountID string
	UserName  string
	Success   bool
	IP        string
	UserAgent string
	Location  string
	CreatedAt time.Time
}
