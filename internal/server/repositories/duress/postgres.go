package duress

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/zkvault/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Bind is idempotent.
func (r *PostgresRepository) Bind(ctx context.Context, sessionID, accountID string) error {
	query :=
		`INSERT INTO duress_bindings (session_id, account_id)
		 VALUES ($1, $2)
		 ON CONFLICT (session_id) DO NOTHING
		 `
	if _, err := r.db.ExecContext(ctx, query, sessionID, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Unbind(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM duress_bindings WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UnbindAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM duress_bindings WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) IsBound(ctx context.Context, sessionID string) (bool, error) {
	var bound bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM duress_bindings WHERE session_id = $1)`, sessionID).Scan(&bound)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return bound, nil
}
