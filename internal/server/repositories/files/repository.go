package files

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

type Repository interface {
	GetByEntryID(ctx context.Context, entryID string) (*models.File, error)
	Overwrite(ctx context.Context, entryID string, encryptedFileKey, nonce []byte) error
	Delete(ctx context.Context, entryID string) error
}
