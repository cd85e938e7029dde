// Package services contains server-side business logic: credential
// verification, sessions with duress mode, one-time shared secrets,
// crypto-shredding of deleted entries and canary traps.
package services

import (
	"time"

	"golang.org/x/crypto/blake2b"
)

// RequestInfo is the forensic context of an incoming request.
type RequestInfo struct {
	IP        string
	UserAgent string
	Referer   string
	Device    string
}

// tokenDigest is the at-rest form of a bearer token.
func tokenDigest(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

// clock is overridden in tests.
type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// fakeSaltSize matches what clients generate for real accounts.
const fakeSaltSize = 32
