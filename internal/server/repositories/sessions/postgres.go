// Package sessions provides a PostgreSQL-backed repository for device sessions.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, account_id, token_hash, device, user_agent, ip, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, last_active_at
	`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.AccountID, s.TokenHash, s.Device, s.UserAgent, s.IP, s.Location).
		Scan(&s.CreatedAt, &s.LastActiveAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectSession = `
		SELECT id, account_id, token_hash, device, user_agent, ip, location, created_at, last_active_at
		FROM sessions
	`

func scanSession(sc interface{ Scan(...any) error }) (*models.Session, error) {
	s := &models.Session{}
	err := sc.Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.Device, &s.UserAgent, &s.IP, &s.Location, &s.CreatedAt, &s.LastActiveAt)
	return s, err
}

func (r *PostgresRepository) FindByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSession+`WHERE token_hash = $1`, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, selectSession+`WHERE account_id = $1 ORDER BY last_active_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_active_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteAllExcept(ctx context.Context, accountID, keepID string) (int64, error) {
	return r.deleteCount(ctx, `DELETE FROM sessions WHERE account_id = $1 AND id <> $2`, accountID, keepID)
}

func (r *PostgresRepository) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteCount(ctx, `DELETE FROM sessions WHERE last_active_at < $1`, cutoff)
}

func (r *PostgresRepository) deleteCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
