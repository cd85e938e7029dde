package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
)

// shredBatchSize is how many candidates one query pages in.
const shredBatchSize = 500

// ObjectDeleter removes attachment ciphertext from object storage.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// ShredReport summarizes one run. In a dry run nothing is mutated and only
// Candidates is filled.
type ShredReport struct {
	DryRun     bool
	Cutoff     time.Time
	Candidates []models.ShredCandidate
	Shredded   int
	Failed     int
}

// Shredder crypto-shreds vault entries that sat in the trash longer than the
// retention window: every encrypted field and nonce is overwritten with
// random data and committed, the attachment object is deleted, then the row.
type Shredder struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	objects     ObjectDeleter
	log         logging.Logger
	clock       clock
	batchSize   int
}

func NewShredder(db *sql.DB, m repomanager.RepositoryManager, objects ObjectDeleter, log logging.Logger) *Shredder {
	return &Shredder{
		db:          db,
		repomanager: m,
		objects:     objects,
		log:         log.With("module", "shredder"),
		batchSize:   shredBatchSize,
	}
}

// Shred processes every candidate independently; one failure is logged and
// counted but never stops the run.
func (s *Shredder) Shred(ctx context.Context, retentionDays int, dryRun bool) (*ShredReport, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("%w: retention days must be positive", common.ErrorValidation)
	}
	now := s.clock.now()
	report := &ShredReport{DryRun: dryRun, Cutoff: now.AddDate(0, 0, -retentionDays)}

	// rows that fail stay behind; the cursor moves past them so the run ends
	var after models.ShredCandidate
	for {
		batch, err := s.repomanager.Entries(s.db).SelectShredCandidates(ctx, report.Cutoff, after, s.batchSize)
		if err != nil {
			return nil, err
		}
		report.Candidates = append(report.Candidates, batch...)

		for _, c := range batch {
			if dryRun {
				s.log.Info(ctx, "shred candidate", "entry_id", c.ID, "user_id", c.UserID, "age", c.Age(now).Round(time.Hour).String())
				continue
			}
			if err := s.shredOne(ctx, c); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					// restored or removed since selection
					continue
				}
				report.Failed++
				s.log.Error(ctx, "shred failed", "entry_id", c.ID, "err", err)
				continue
			}
			report.Shredded++
		}

		if len(batch) < s.batchSize {
			break
		}
		after = batch[len(batch)-1]
	}

	if !dryRun {
		s.log.Info(ctx, "shred run finished",
			"candidates", len(report.Candidates), "shredded", report.Shredded, "failed", report.Failed)
	}
	return report, nil
}

// EraseOwned shreds every entry of the owner, trashed or not, ahead of the
// account row. The first failure stops it; what is left stays in the trash.
func (s *Shredder) EraseOwned(ctx context.Context, ownerID string) error {
	entries := s.repomanager.Entries(s.db)
	if _, err := entries.TrashByUser(ctx, ownerID, s.clock.now()); err != nil {
		return err
	}
	ids, err := entries.ListIDsByUser(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		err := s.shredOne(ctx, models.ShredCandidate{ID: id, UserID: ownerID})
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("shred entry %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		s.log.Info(ctx, "owner entries shredded", "user_id", ownerID, "count", len(ids))
	}
	return nil
}

func (s *Shredder) shredOne(ctx context.Context, c models.ShredCandidate) error {
	var file *models.File

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entries := s.repomanager.Entries(tx)
		entry, err := entries.GetForShred(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := entries.Overwrite(ctx, randomizeEntry(entry)); err != nil {
			return err
		}

		files := s.repomanager.Files(tx)
		file, err = files.GetByEntryID(ctx, c.ID)
		if errors.Is(err, common.ErrorNotFound) {
			file = nil
			return nil
		}
		if err != nil {
			return err
		}
		return files.Overwrite(ctx, c.ID,
			randomLike(file.EncryptedFileKey, minEraseSize),
			randomLike(file.Nonce, 12))
	})
	if err != nil {
		return err
	}

	if file != nil && file.StorageKey != "" {
		if err := s.objects.Delete(ctx, file.StorageKey); err != nil {
			return fmt.Errorf("delete attachment: %w", err)
		}
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if file != nil {
			if err := s.repomanager.Files(tx).Delete(ctx, c.ID); err != nil {
				return err
			}
		}
		return s.repomanager.Entries(tx).Delete(ctx, c.ID)
	})
}

// randomizeEntry returns a copy of e whose encrypted fields and nonces are
// replaced by independent random values of at least the same length.
func randomizeEntry(e *models.Entry) *models.Entry {
	return &models.Entry{
		ID:            e.ID,
		UserID:        e.UserID,
		Overview:      randomLike(e.Overview, minEraseSize),
		NonceOverview: randomLike(e.NonceOverview, 12),
		Details:       randomLike(e.Details, minEraseSize),
		NonceDetails:  randomLike(e.NonceDetails, 12),
		DeletedAt:     e.DeletedAt,
	}
}

func randomLike(b []byte, min int) []byte {
	return common.GenerateRandByteArray(common.ShredSize(len(b), min))
}
