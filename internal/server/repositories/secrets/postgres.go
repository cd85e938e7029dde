package secrets

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
// GetForUpdate only makes sense on a *sql.Tx.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.SharedSecret) error {
	query :=
		`INSERT INTO shared_secrets (id, owner_id, encrypted_blob, expires_at, max_views, passphrase_hash, passphrase_salt)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		 RETURNING view_count, created_at
		 `
	err := r.db.QueryRowContext(ctx, query, s.ID, s.OwnerID, s.EncryptedBlob, s.ExpiresAt, s.MaxViews,
		s.PassphraseHash, s.PassphraseSalt).Scan(&s.ViewCount, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectSecret = `SELECT id, owner_id, encrypted_blob, expires_at, view_count, max_views, passphrase_hash, passphrase_salt, created_at
		 FROM shared_secrets
		 WHERE id = $1`

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SharedSecret, error) {
	return r.get(ctx, selectSecret, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.SharedSecret, error) {
	s, err := r.get(ctx, selectSecret+` FOR UPDATE NOWAIT`, id)
	if err != nil {
		if dbx.IsLockNotAvailable(err) {
			return nil, common.ErrLocked
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.SharedSecret, error) {
	var (
		s    models.SharedSecret
		hash sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.OwnerID, &s.EncryptedBlob, &s.ExpiresAt,
		&s.ViewCount, &s.MaxViews, &hash, &s.PassphraseSalt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if dbx.IsLockNotAvailable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.PassphraseHash = hash.String
	return &s, nil
}

func (r *PostgresRepository) IncrementViews(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `UPDATE shared_secrets SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`, id).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Overwrite(ctx context.Context, id string, blob []byte) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE shared_secrets SET encrypted_blob = $2 WHERE id = $1`, id, blob); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shared_secrets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListOwned(ctx context.Context, ownerID string) ([]models.SharedSecret, error) {
	query :=
		`SELECT id, owner_id, expires_at, view_count, max_views, passphrase_hash, passphrase_salt, created_at
		 FROM shared_secrets
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 `
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.SharedSecret
	for rows.Next() {
		var (
			s    models.SharedSecret
			hash sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.ExpiresAt, &s.ViewCount, &s.MaxViews, &hash, &s.PassphraseSalt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		s.PassphraseHash = hash.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM shared_secrets WHERE expires_at <= $1 ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
