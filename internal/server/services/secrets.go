package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/locks"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/secrets"
)

const (
	secretIDSize     = 32
	minEraseSize     = 32
	purgeBatchSize   = 500
	secretLockPrefix = "secret:"
)

// CreateSecretInput describes a new shared secret. The blob is ciphertext
// produced by the client and is stored as received.
type CreateSecretInput struct {
	OwnerID        string
	Blob           []byte
	MaxViews       int
	TTLHours       int
	PassphraseHash string
	PassphraseSalt []byte
}

type CreatedSecret struct {
	ID        string
	ExpiresAt time.Time
}

type ViewResult struct {
	Blob           []byte
	ViewsRemaining int
}

// SecretService stores burn-on-read secrets. Reads of one secret are
// serialized by a non-blocking lock: a reader arriving while another holds
// the secret gets common.ErrConflict immediately.
type SecretService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	locker      locks.TryLocker
	log         logging.Logger
	clock       clock
}

func NewSecretService(db *sql.DB, m repomanager.RepositoryManager, locker locks.TryLocker, log logging.Logger) *SecretService {
	return &SecretService{
		db:          db,
		repomanager: m,
		locker:      locker,
		log:         log.With("module", "secrets"),
	}
}

func (s *SecretService) Create(ctx context.Context, in CreateSecretInput) (*CreatedSecret, error) {
	if in.MaxViews < common.MinSecretViews || in.MaxViews > common.MaxSecretViews {
		return nil, fmt.Errorf("%w: max views must be between %d and %d", common.ErrorValidation, common.MinSecretViews, common.MaxSecretViews)
	}
	if in.TTLHours < common.MinSecretTTLHours || in.TTLHours > common.MaxSecretTTLHours {
		return nil, fmt.Errorf("%w: ttl hours must be between %d and %d", common.ErrorValidation, common.MinSecretTTLHours, common.MaxSecretTTLHours)
	}
	if len(in.Blob) == 0 {
		return nil, fmt.Errorf("%w: encrypted blob is required", common.ErrorValidation)
	}
	passphrase, err := common.NormalizeOptionalAuthHash(in.PassphraseHash)
	if err != nil {
		return nil, err
	}

	id, err := common.MakeRandHexString(secretIDSize)
	if err != nil {
		return nil, common.ErrorInternal
	}
	secret := &models.SharedSecret{
		ID:             id,
		OwnerID:        in.OwnerID,
		EncryptedBlob:  in.Blob,
		ExpiresAt:      s.clock.now().Add(time.Duration(in.TTLHours) * time.Hour),
		MaxViews:       in.MaxViews,
		PassphraseHash: passphrase,
	}
	if passphrase != "" {
		secret.PassphraseSalt = in.PassphraseSalt
	}

	if err := s.repomanager.Secrets(s.db).Create(ctx, secret); err != nil {
		s.log.Error(ctx, "create secret failed", "err", err)
		return nil, common.ErrorInternal
	}
	s.log.Info(ctx, "secret created", "owner_id", in.OwnerID, "max_views", in.MaxViews, "ttl_hours", in.TTLHours)
	return &CreatedSecret{ID: id, ExpiresAt: secret.ExpiresAt}, nil
}

// Metadata describes a secret without consuming a view. An expired or
// exhausted secret is purged on the way out.
func (s *SecretService) Metadata(ctx context.Context, id string) (*models.SecretMetadata, error) {
	secret, err := s.repomanager.Secrets(s.db).Get(ctx, id)
	if err != nil {
		return nil, s.mapErr(ctx, "secret metadata", err)
	}
	if secret.Expired(s.clock.now()) {
		if _, err := s.purgeOne(ctx, id); err != nil {
			s.log.Warn(ctx, "purge expired secret", "err", err)
		}
		return nil, common.ErrExpired
	}
	if secret.Exhausted() {
		if _, err := s.purgeOne(ctx, id); err != nil {
			s.log.Warn(ctx, "purge exhausted secret", "err", err)
		}
		return nil, common.ErrorNotFound
	}
	return metadataOf(secret), nil
}

// View returns the ciphertext and consumes one view. The last permitted view
// erases the secret. Outcomes: common.ErrorNotFound, common.ErrExpired,
// common.ErrPassphraseRequired, common.ErrPassphraseInvalid and
// common.ErrConflict.
func (s *SecretService) View(ctx context.Context, id, passphraseHash string) (*ViewResult, error) {
	unlock, ok, err := s.locker.TryLock(ctx, secretLockPrefix+id)
	if err != nil {
		s.log.Error(ctx, "secret lock failed", "err", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, common.ErrConflict
	}
	defer unlock()

	candidate := strings.ToLower(passphraseHash)

	// the erase must commit even when the caller is refused, so refusals are
	// carried out of the transaction in outcome
	var (
		result  *ViewResult
		outcome error
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Secrets(tx)

		secret, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if secret.Expired(s.clock.now()) {
			outcome = common.ErrExpired
			return erase(ctx, repo, secret)
		}
		if secret.Exhausted() {
			outcome = common.ErrorNotFound
			return erase(ctx, repo, secret)
		}
		if secret.PassphraseRequired() {
			if candidate == "" {
				outcome = common.ErrPassphraseRequired
				return nil
			}
			if !common.HashesEqual(secret.PassphraseHash, candidate) {
				outcome = common.ErrPassphraseInvalid
				return nil
			}
		}

		blob := make([]byte, len(secret.EncryptedBlob))
		copy(blob, secret.EncryptedBlob)

		remaining := secret.MaxViews - secret.ViewCount - 1
		if remaining <= 0 {
			if err := erase(ctx, repo, secret); err != nil {
				return err
			}
			remaining = 0
		} else if _, err := repo.IncrementViews(ctx, id); err != nil {
			return err
		}

		result = &ViewResult{Blob: blob, ViewsRemaining: remaining}
		return nil
	})
	if err != nil {
		return nil, s.mapErr(ctx, "view secret", err)
	}
	if outcome != nil {
		return nil, outcome
	}
	s.log.Info(ctx, "secret viewed", "views_remaining", result.ViewsRemaining)
	return result, nil
}

// Revoke erases a secret before it is consumed. Secrets of other owners are
// reported as not found.
func (s *SecretService) Revoke(ctx context.Context, id, ownerID string) error {
	err := s.eraseOwnedSecret(ctx, id, ownerID)
	if errors.Is(err, common.ErrConflict) {
		return err
	}
	if err != nil {
		return s.mapErr(ctx, "revoke secret", err)
	}
	s.log.Info(ctx, "secret revoked", "owner_id", ownerID)
	return nil
}

// EraseOwned erases every secret of the owner through the locked path. A
// secret held by a reader fails it with common.ErrConflict.
func (s *SecretService) EraseOwned(ctx context.Context, ownerID string) error {
	list, err := s.repomanager.Secrets(s.db).ListOwned(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, secret := range list {
		err := s.eraseOwnedSecret(ctx, secret.ID, ownerID)
		switch {
		case err == nil, errors.Is(err, common.ErrorNotFound):
		case errors.Is(err, common.ErrLocked):
			return common.ErrConflict
		default:
			return err
		}
	}
	if len(list) > 0 {
		s.log.Info(ctx, "owner secrets erased", "owner_id", ownerID, "count", len(list))
	}
	return nil
}

func (s *SecretService) eraseOwnedSecret(ctx context.Context, id, ownerID string) error {
	unlock, ok, err := s.locker.TryLock(ctx, secretLockPrefix+id)
	if err != nil {
		return fmt.Errorf("secret lock: %w", err)
	}
	if !ok {
		return common.ErrConflict
	}
	defer unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Secrets(tx)
		secret, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if secret.OwnerID != ownerID {
			return common.ErrorNotFound
		}
		return erase(ctx, repo, secret)
	})
}

// ListOwned returns metadata of the owner's secrets, consumed ones excluded.
func (s *SecretService) ListOwned(ctx context.Context, ownerID string) ([]models.SecretMetadata, error) {
	list, err := s.repomanager.Secrets(s.db).ListOwned(ctx, ownerID)
	if err != nil {
		s.log.Error(ctx, "list secrets failed", "err", err)
		return nil, common.ErrorInternal
	}
	out := make([]models.SecretMetadata, 0, len(list))
	for i := range list {
		if list[i].Exhausted() {
			continue
		}
		out = append(out, *metadataOf(&list[i]))
	}
	return out, nil
}

// PurgeExpired erases every expired secret. Secrets busy with a reader are
// skipped and picked up by the next run.
func (s *SecretService) PurgeExpired(ctx context.Context) (int, error) {
	purged := 0
	for {
		ids, err := s.repomanager.Secrets(s.db).SelectExpired(ctx, s.clock.now(), purgeBatchSize)
		if err != nil {
			return purged, err
		}
		progress := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				return purged, ctx.Err()
			}
			done, err := s.purgeOne(ctx, id)
			if err != nil {
				s.log.Warn(ctx, "purge secret failed", "err", err)
				continue
			}
			if done {
				purged++
				progress++
			}
		}
		if len(ids) < purgeBatchSize || progress == 0 {
			break
		}
	}
	if purged > 0 {
		s.log.Info(ctx, "expired secrets purged", "count", purged)
	}
	return purged, nil
}

// purgeOne erases id if it is still expired or exhausted. It reports false
// when the secret is busy or already gone.
func (s *SecretService) purgeOne(ctx context.Context, id string) (bool, error) {
	unlock, ok, err := s.locker.TryLock(ctx, secretLockPrefix+id)
	if err != nil || !ok {
		return false, err
	}
	defer unlock()

	done := false
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Secrets(tx)
		secret, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !secret.Expired(s.clock.now()) && !secret.Exhausted() {
			return nil
		}
		done = true
		return erase(ctx, repo, secret)
	})
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrLocked) {
		return false, nil
	}
	return done, err
}

// erase overwrites the ciphertext with fresh random bytes of at least the
// same length, then deletes the row.
func erase(ctx context.Context, repo secrets.Repository, secret *models.SharedSecret) error {
	junk := common.GenerateRandByteArray(common.ShredSize(len(secret.EncryptedBlob), minEraseSize))
	if err := repo.Overwrite(ctx, secret.ID, junk); err != nil {
		return err
	}
	return repo.Delete(ctx, secret.ID)
}

func metadataOf(secret *models.SharedSecret) *models.SecretMetadata {
	return &models.SecretMetadata{
		ID:                 secret.ID,
		PassphraseRequired: secret.PassphraseRequired(),
		PassphraseSalt:     secret.PassphraseSalt,
		ViewsRemaining:     secret.ViewsRemaining(),
		ExpiresAt:          secret.ExpiresAt,
		CreatedAt:          secret.CreatedAt,
	}
}

func (s *SecretService) mapErr(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrorNotFound
	case errors.Is(err, common.ErrLocked):
		return common.ErrConflict
	default:
		s.log.Error(ctx, op+" failed", "err", err)
		return common.ErrorInternal
	}
}
