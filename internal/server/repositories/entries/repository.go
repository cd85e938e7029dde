package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

type Repository interface {
	// SelectShredCandidates pages through entries soft-deleted before cutoff
	// in (deleted_at, id) order, starting strictly after the given candidate.
	// A zero after starts from the beginning.
	SelectShredCandidates(ctx context.Context, cutoff time.Time, after models.ShredCandidate, limit int) ([]models.ShredCandidate, error)
	// TrashByUser soft-deletes every live entry of the user at the given time.
	TrashByUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// ListIDsByUser returns the ids of all entries of the user, trashed or not.
	ListIDsByUser(ctx context.Context, userID string) ([]string, error)
	GetForShred(ctx context.Context, id string) (*models.Entry, error)
	Overwrite(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, id string) error
}
