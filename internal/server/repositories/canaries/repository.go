// Package canaries declares the repository contract for canary traps and
// their trigger history.
package canaries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// Repository defines storage operations for canary traps.
type Repository interface {
	// Create stores t. The caller assigns t.ID and t.Token.
	Create(ctx context.Context, t *models.CanaryTrap) error

	// FindActiveByTokenForUpdate locks the active trap owning token.
	// Unknown or deactivated tokens yield common.ErrorNotFound.
	FindActiveByTokenForUpdate(ctx context.Context, token string) (*models.CanaryTrap, error)

	// RecordTrigger increments the counter and sets last_triggered_at,
	// returning the new count.
	RecordTrigger(ctx context.Context, id string, at time.Time) (int, error)

	// AddEvent appends a trigger event. The caller assigns e.ID and e.CreatedAt.
	AddEvent(ctx context.Context, e *models.TriggerEvent) error

	ListByOwner(ctx context.Context, ownerID string) ([]models.CanaryTrap, error)

	// Events returns the newest events of a trap owned by ownerID. Traps of
	// other owners yield common.ErrorNotFound.
	Events(ctx context.Context, ownerID, trapID string, limit int) ([]models.TriggerEvent, error)

	// Deactivate stops a trap from firing. The trap and its history remain.
	Deactivate(ctx context.Context, ownerID, trapID string) error
}
