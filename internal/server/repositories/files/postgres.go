// Package files provides PostgreSQL-backed access to attachment metadata.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByEntryID returns the attachment of an entry or common.ErrorNotFound.
func (r *PostgresRepository) GetByEntryID(ctx context.Context, entryID string) (*models.File, error) {
	query := `
		SELECT entry_id, user_id, storage_key, encrypted_file_key, nonce FROM files
		WHERE entry_id = $1
	`
	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, entryID).Scan(&f.EntryID, &f.UserID, &f.StorageKey, &f.EncryptedFileKey, &f.Nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// Overwrite replaces the wrapped file key and nonce in place.
func (r *PostgresRepository) Overwrite(ctx context.Context, entryID string, encryptedFileKey, nonce []byte) error {
	query := `UPDATE files SET encrypted_file_key = $2, nonce = $3 WHERE entry_id = $1`
	if _, err := r.db.ExecContext(ctx, query, entryID, encryptedFileKey, nonce); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE entry_id = $1`, entryID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
