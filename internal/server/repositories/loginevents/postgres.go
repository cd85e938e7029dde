package loginevents

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends an event. AccountID may be empty for unknown usernames.
func (r *PostgresRepository) Create(ctx context.Context, e *models.LoginEvent) error {
	query :=
		`INSERT INTO login_events (account_id, username, success, ip, user_agent, location)
		 VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6)
		 RETURNING id, created_at
		 `
	err := r.db.QueryRowContext(ctx, query, e.AccountID, e.UserName, e.Success, e.IP, e.UserAgent, e.Location).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LoginEvent, error) {
	query :=
		`SELECT id, account_id, username, success, ip, user_agent, location, created_at
		 FROM login_events
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2
		 `
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.LoginEvent
	for rows.Next() {
		var e models.LoginEvent
		if err := rows.Scan(&e.ID, &e.AccountID, &e.UserName, &e.Success, &e.IP, &e.UserAgent, &e.Location, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
