package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectAccount = `SELECT id, username, master_auth_hash, encryption_salt, duress_auth_hash, duress_salt, sos_contact, created_at, updated_at
		 FROM accounts`

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (username, master_auth_hash, encryption_salt)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, account.UserName, account.MasterAuthHash, account.EncryptionSalt).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrUsernameTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.Account, error) {
	return r.get(ctx, selectAccount+` WHERE username = $1`, userName)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, selectAccount+` WHERE id = $1`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*models.Account, error) {
	var (
		a          models.Account
		duressHash sql.NullString
		sos        sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.UserName, &a.MasterAuthHash, &a.EncryptionSalt,
		&duressHash, &a.DuressSalt, &sos, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.DuressAuthHash = duressHash.String
	a.SOSContact = sos.String
	return &a, nil
}

// UpdateMaster replaces the master credential and drops any duress credential,
// which was derived for the old password.
func (r *PostgresRepository) UpdateMaster(ctx context.Context, id string, masterAuthHash string, encryptionSalt []byte) error {
	query :=
		`UPDATE accounts
		 SET master_auth_hash = $2, encryption_salt = $3,
		     duress_auth_hash = NULL, duress_salt = NULL, updated_at = now()
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, masterAuthHash, encryptionSalt)
}

func (r *PostgresRepository) SetDuress(ctx context.Context, id string, duressAuthHash string, duressSalt []byte, sosContact string) error {
	query :=
		`UPDATE accounts
		 SET duress_auth_hash = $2, duress_salt = $3, sos_contact = NULLIF($4, ''), updated_at = now()
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, duressAuthHash, duressSalt, sosContact)
}

func (r *PostgresRepository) ClearDuress(ctx context.Context, id string) error {
	query :=
		`UPDATE accounts
		 SET duress_auth_hash = NULL, duress_salt = NULL, sos_contact = NULL, updated_at = now()
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
