// Package accounts persists credential records.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByUserName(ctx context.Context, userName string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateMaster(ctx context.Context, id string, masterAuthHash string, encryptionSalt []byte) error
	SetDuress(ctx context.Context, id string, duressAuthHash string, duressSalt []byte, sosContact string) error
	ClearDuress(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
