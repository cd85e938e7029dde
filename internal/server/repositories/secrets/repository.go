// Package secrets declares the repository contract for one-time shared secrets.
package secrets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// Repository defines storage operations for shared secrets.
type Repository interface {
	// Create stores s. The caller assigns s.ID.
	Create(ctx context.Context, s *models.SharedSecret) error

	// Get reads a secret without locking it.
	Get(ctx context.Context, id string) (*models.SharedSecret, error)

	// GetForUpdate reads and row-locks a secret for the rest of the
	// transaction. It must not wait: if another transaction holds the row,
	// it fails with common.ErrLocked.
	GetForUpdate(ctx context.Context, id string) (*models.SharedSecret, error)

	// IncrementViews bumps view_count and returns the new value.
	IncrementViews(ctx context.Context, id string) (int, error)

	// Overwrite replaces the stored ciphertext in place.
	Overwrite(ctx context.Context, id string, blob []byte) error

	Delete(ctx context.Context, id string) error

	// ListOwned returns the owner's secrets without their ciphertext.
	ListOwned(ctx context.Context, ownerID string) ([]models.SharedSecret, error)

	// SelectExpired returns up to limit ids of secrets expired at now.
	SelectExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}
