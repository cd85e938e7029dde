package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/alerts"
	"github.com/dmitrijs2005/zkvault/internal/server/geo"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	maxTrapLabel      = 200
	defaultEventLimit = 100
)

// TriggerResult says what happened when a trap token was fetched.
type TriggerResult struct {
	Triggered      bool
	AlertScheduled bool
	TrapType       string
}

// CanaryService manages honeytokens. Trigger is reachable without
// authentication: whoever fetches the token is the intruder being detected.
type CanaryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	alerts      alerts.Submitter
	locator     geo.Locator
	log         logging.Logger
	clock       clock
}

func NewCanaryService(db *sql.DB, m repomanager.RepositoryManager, submitter alerts.Submitter,
	locator geo.Locator, log logging.Logger) *CanaryService {
	return &CanaryService{
		db:          db,
		repomanager: m,
		alerts:      submitter,
		locator:     locator,
		log:         log.With("module", "canary"),
	}
}

func (s *CanaryService) Create(ctx context.Context, ownerID, label, trapType string) (*models.CanaryTrap, error) {
	label = strings.TrimSpace(label)
	if label == "" || len(label) > maxTrapLabel {
		return nil, fmt.Errorf("%w: label must be 1..%d characters", common.ErrorValidation, maxTrapLabel)
	}
	if !models.ValidTrapType(trapType) {
		return nil, fmt.Errorf("%w: unknown trap type %q", common.ErrorValidation, trapType)
	}

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	trap := &models.CanaryTrap{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Label:   label,
		Type:    trapType,
		Token:   token,
	}
	if err := s.repomanager.Canaries(s.db).Create(ctx, trap); err != nil {
		s.log.Error(ctx, "create trap failed", "err", err)
		return nil, common.ErrorInternal
	}
	s.log.Info(ctx, "trap created", "owner_id", ownerID, "trap_id", trap.ID, "type", trapType)
	return trap, nil
}

// Trigger records a fetch of token and schedules an alert to the owner.
// Unknown and deactivated tokens yield common.ErrorNotFound.
func (s *CanaryService) Trigger(ctx context.Context, token string, info RequestInfo) (*TriggerResult, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	location := s.locator.Locate(ctx, info.IP)
	now := s.clock.now()

	var (
		trap  *models.CanaryTrap
		owner *models.Account
		count int
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Canaries(tx)

		var err error
		trap, err = repo.FindActiveByTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}
		count, err = repo.RecordTrigger(ctx, trap.ID, now)
		if err != nil {
			return err
		}
		if err := repo.AddEvent(ctx, &models.TriggerEvent{
			ID:        uuid.NewString(),
			TrapID:    trap.ID,
			IP:        info.IP,
			UserAgent: info.UserAgent,
			Referer:   info.Referer,
			Location:  location,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		owner, err = s.repomanager.Accounts(tx).GetByID(ctx, trap.OwnerID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.log.Error(ctx, "trigger failed", "err", err)
		return nil, common.ErrorInternal
	}

	s.log.Warn(ctx, "canary triggered", "trap_id", trap.ID, "owner_id", trap.OwnerID, "count", count)

	scheduled := s.alerts.Submit(alerts.Alert{
		Kind:      alerts.KindCanary,
		AccountID: trap.OwnerID,
		Recipient: owner.UserName,
		Subject:   "Canary trap triggered: " + trap.Label,
		Body:      "Someone accessed a honeytoken you planted. Treat the location it was planted in as compromised.",
		Fields: map[string]string{
			"trap_type":  trap.Type,
			"ip":         info.IP,
			"user_agent": info.UserAgent,
			"referer":    info.Referer,
			"location":   location,
			"count":      fmt.Sprint(count),
		},
		CreatedAt: now,
	})

	return &TriggerResult{Triggered: true, AlertScheduled: scheduled, TrapType: trap.Type}, nil
}

func (s *CanaryService) List(ctx context.Context, ownerID string) ([]models.CanaryTrap, error) {
	list, err := s.repomanager.Canaries(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		s.log.Error(ctx, "list traps failed", "err", err)
		return nil, common.ErrorInternal
	}
	return list, nil
}

// Events returns the newest trigger events of an owned trap. Traps of other
// owners are reported as not found.
func (s *CanaryService) Events(ctx context.Context, ownerID, trapID string, limit int) ([]models.TriggerEvent, error) {
	if limit <= 0 || limit > defaultEventLimit {
		limit = defaultEventLimit
	}
	events, err := s.repomanager.Canaries(s.db).Events(ctx, ownerID, trapID, limit)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.log.Error(ctx, "list trap events failed", "err", err)
		return nil, common.ErrorInternal
	}
	return events, nil
}

func (s *CanaryService) Deactivate(ctx context.Context, ownerID, trapID string) error {
	if err := s.repomanager.Canaries(s.db).Deactivate(ctx, ownerID, trapID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.log.Error(ctx, "deactivate trap failed", "err", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "trap deactivated", "trap_id", trapID)
	return nil
}
