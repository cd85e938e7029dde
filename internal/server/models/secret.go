package models

import "time"

// SharedSecret is a one-time, expiring, optionally passphrase-gated
// ciphertext. Possession of the link id is the only credential for reading.
type SharedSecret struct {
	ID             string
	OwnerID        string
	EncryptedBlob  []byte
	ExpiresAt      time.Time
	ViewCount      int
	MaxViews       int
	PassphraseHash string
	PassphraseSalt []byte
	CreatedAt      time.Time
}

// PassphraseRequired reports whether viewing needs a passphrase hash.
func (s *SharedSecret) PassphraseRequired() bool {
	return s.PassphraseHash != ""
}

// Expired reports whether the secret is past its expiry at now.
func (s *SharedSecret) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Exhausted reports whether the view budget has been used up.
func (s *SharedSecret) Exhausted() bool {
	return s.ViewCount >= s.MaxViews
}

// ViewsRemaining is never negative.
func (s *SharedSecret) ViewsRemaining() int {
	if s.Exhausted() {
		return 0
	}
	return s.MaxViews - s.ViewCount
}

// SecretMetadata is the public, non-sensitive view of a shared secret.
type SecretMetadata struct {
	ID                 string
	PassphraseRequired bool
	PassphraseSalt     []byte
	ViewsRemaining     int
	ExpiresAt          time.Time
	CreatedAt          time.Time
}
