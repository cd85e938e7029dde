package common

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizeAuthHash validates a client-supplied hex digest and case-folds it.
// No other transformation is applied to the payload.
func NormalizeAuthHash(s string) (string, error) {
	if len(s) != AuthHashHexLength {
		return "", fmt.Errorf("%w: auth hash must be %d hex characters", ErrorValidation, AuthHashHexLength)
	}
	lower := strings.ToLower(s)
	if _, err := hex.DecodeString(lower); err != nil {
		return "", fmt.Errorf("%w: auth hash is not hex", ErrorValidation)
	}
	return lower, nil
}

// NormalizeOptionalAuthHash is NormalizeAuthHash for optional fields;
// an empty string stays empty.
func NormalizeOptionalAuthHash(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return NormalizeAuthHash(s)
}

// HashesEqual compares two digests in constant time with respect to content.
// An empty stored value never matches.
func HashesEqual(stored, candidate string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
