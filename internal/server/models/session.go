package models

import "time"

// Session is the server-side half of a bearer token. Only a digest of the
// token is stored; the token itself is returned once at login.
type Session struct {
	ID           string
	AccountID    string
	TokenHash    []byte
	Device       string
	UserAgent    string
	IP           string
	Location     string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// SessionInfo is what a user sees when listing their devices.
type SessionInfo struct {
	Session
	Current bool
}
