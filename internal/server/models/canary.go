package models

import "time"

// Canary trap types.
const (
	TrapTypeURL        = "url"
	TrapTypeCredential = "credential"
	TrapTypeDocument   = "document"
	TrapTypeAPIKey     = "api_key"
)

// ValidTrapType reports whether t is a known trap type.
func ValidTrapType(t string) bool {
	switch t {
	case TrapTypeURL, TrapTypeCredential, TrapTypeDocument, TrapTypeAPIKey:
		return true
	}
	return false
}

// CanaryTrap is a honeytoken owned by an account.
type CanaryTrap struct {
	ID              string
	OwnerID         string
	Label           string
	Type            string
	Token           string
	Active          bool
	TriggerCount    int
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
}

// TriggerEvent is the append-only forensic record of one trap fetch.
type TriggerEvent struct {
	ID        string
	TrapID    string
	IP        string
	UserAgent string
	Referer   string
	Location  string
	CreatedAt time.Time
}
