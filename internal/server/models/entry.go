package models

import "time"

// Entry is a vault item as far as shredding is concerned: two encrypted
// fields, each with its own nonce.
type Entry struct {
	ID            string
	UserID        string
	Overview      []byte
	NonceOverview []byte
	Details       []byte
	NonceDetails  []byte
	DeletedAt     *time.Time
}

// ShredCandidate is a soft-deleted entry past the retention window.
type ShredCandidate struct {
	ID        string
	UserID    string
	DeletedAt time.Time
}

// Age returns how long the entry has been in the trash at now.
func (c ShredCandidate) Age(now time.Time) time.Duration {
	return now.Sub(c.DeletedAt)
}

// File describes the attachment of an entry. The ciphertext itself lives in
// object storage under StorageKey.
type File struct {
	EntryID          string
	UserID           string
	StorageKey       string
	EncryptedFileKey []byte
	Nonce            []byte
}
