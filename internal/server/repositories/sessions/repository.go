// Package sessions declares the repository contract for device sessions.
// A session row is keyed by a digest of the bearer token, never the token.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// Repository defines operations on device sessions.
type Repository interface {
	// Create stores s. The caller assigns s.ID.
	Create(ctx context.Context, s *models.Session) error

	// FindByTokenHash returns the session owning the token digest or
	// common.ErrorNotFound.
	FindByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error)

	// ListByAccount returns all sessions of an account, most recently active first.
	ListByAccount(ctx context.Context, accountID string) ([]models.Session, error)

	// Touch bumps last_active_at to at.
	Touch(ctx context.Context, id string, at time.Time) error

	// Delete removes one session of an account. Returns common.ErrorNotFound
	// when no such session belongs to accountID.
	Delete(ctx context.Context, accountID, id string) error

	// DeleteAllExcept removes every session of accountID other than keepID
	// and reports how many were removed.
	DeleteAllExcept(ctx context.Context, accountID, keepID string) (int64, error)

	// DeleteIdle removes sessions inactive since before cutoff.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error)
}
