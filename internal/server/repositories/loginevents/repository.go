// Package loginevents stores the login audit trail.
package loginevents

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, event *models.LoginEvent) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LoginEvent, error)
}
