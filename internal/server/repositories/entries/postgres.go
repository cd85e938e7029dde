// Package entries provides PostgreSQL-backed access to soft-deleted vault
// entries for the shredder.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements entry storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SelectShredCandidates returns up to limit entries soft-deleted strictly
// before cutoff, oldest first, resuming after the given candidate.
func (r *PostgresRepository) SelectShredCandidates(ctx context.Context, cutoff time.Time, after models.ShredCandidate, limit int) ([]models.ShredCandidate, error) {
	query := `
		SELECT id, user_id, deleted_at FROM entries
		WHERE deleted_at IS NOT NULL AND deleted_at < $1 AND (deleted_at, id) > ($2, $3)
		ORDER BY deleted_at, id
		LIMIT $4
	`
	afterID := after.ID
	if afterID == "" {
		afterID = uuid.Nil.String()
	}
	rows, err := r.db.QueryContext(ctx, query, cutoff, after.DeletedAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select shred candidates: %w", err)
	}
	defer rows.Close()

	var result []models.ShredCandidate
	for rows.Next() {
		var c models.ShredCandidate
		if err := rows.Scan(&c.ID, &c.UserID, &c.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TrashByUser marks every live entry of userID as deleted at at.
func (r *PostgresRepository) TrashByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET deleted_at = $2, updated_at = now() WHERE user_id = $1 AND deleted_at IS NULL`,
		userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// ListIDsByUser returns the ids of every entry owned by userID.
func (r *PostgresRepository) ListIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM entries WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetForShred locks a soft-deleted entry and returns its encrypted fields.
// Entries restored in the meantime yield common.ErrorNotFound.
func (r *PostgresRepository) GetForShred(ctx context.Context, id string) (*models.Entry, error) {
	query := `
		SELECT id, user_id, overview, nonce_overview, details, nonce_details, deleted_at FROM entries
		WHERE id = $1 AND deleted_at IS NOT NULL
		FOR UPDATE
	`
	var (
		e       models.Entry
		deleted sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.UserID, &e.Overview, &e.NonceOverview,
		&e.Details, &e.NonceDetails, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if deleted.Valid {
		e.DeletedAt = &deleted.Time
	}
	return &e, nil
}

// Overwrite replaces the encrypted fields of entry.ID with the given values.
func (r *PostgresRepository) Overwrite(ctx context.Context, entry *models.Entry) error {
	query := `
		UPDATE entries
		SET overview = $2, nonce_overview = $3, details = $4, nonce_details = $5, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Overview, entry.NonceOverview, entry.Details, entry.NonceDetails)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// Delete hard-deletes an entry.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
