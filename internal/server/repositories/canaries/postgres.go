package canaries

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

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.CanaryTrap) error {
	query :=
		`INSERT INTO canary_traps (id, owner_id, label, trap_type, token)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING active, trigger_count, created_at
		 `
	err := r.db.QueryRowContext(ctx, query, t.ID, t.OwnerID, t.Label, t.Type, t.Token).
		Scan(&t.Active, &t.TriggerCount, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectTrap = `SELECT id, owner_id, label, trap_type, token, active, trigger_count, last_triggered_at, created_at
		 FROM canary_traps`

func scanTrap(sc interface{ Scan(...any) error }) (*models.CanaryTrap, error) {
	var (
		t    models.CanaryTrap
		last sql.NullTime
	)
	if err := sc.Scan(&t.ID, &t.OwnerID, &t.Label, &t.Type, &t.Token, &t.Active, &t.TriggerCount, &last, &t.CreatedAt); err != nil {
		return nil, err
	}
	if last.Valid {
		t.LastTriggeredAt = &last.Time
	}
	return &t, nil
}

func (r *PostgresRepository) FindActiveByTokenForUpdate(ctx context.Context, token string) (*models.CanaryTrap, error) {
	row := r.db.QueryRowContext(ctx, selectTrap+` WHERE token = $1 AND active FOR UPDATE`, token)
	t, err := scanTrap(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) RecordTrigger(ctx context.Context, id string, at time.Time) (int, error) {
	query :=
		`UPDATE canary_traps
		 SET trigger_count = trigger_count + 1, last_triggered_at = $2
		 WHERE id = $1
		 RETURNING trigger_count
		 `
	var n int
	if err := r.db.QueryRowContext(ctx, query, id, at).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) AddEvent(ctx context.Context, e *models.TriggerEvent) error {
	query :=
		`INSERT INTO canary_trigger_events (id, trap_id, ip, user_agent, referer, location, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.TrapID, e.IP, e.UserAgent, e.Referer, e.Location, e.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.CanaryTrap, error) {
	rows, err := r.db.QueryContext(ctx, selectTrap+` WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.CanaryTrap
	for rows.Next() {
		t, err := scanTrap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Events returns common.ErrorNotFound when trapID is not owned by ownerID.
func (r *PostgresRepository) Events(ctx context.Context, ownerID, trapID string, limit int) ([]models.TriggerEvent, error) {
	var owned bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM canary_traps WHERE id = $1 AND owner_id = $2)`, trapID, ownerID).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !owned {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT e.id, e.trap_id, e.ip, e.user_agent, e.referer, e.location, e.created_at
		 FROM canary_trigger_events e
		 JOIN canary_traps t ON t.id = e.trap_id
		 WHERE t.owner_id = $1 AND e.trap_id = $2
		 ORDER BY e.created_at DESC
		 LIMIT $3
		 `
	rows, err := r.db.QueryContext(ctx, query, ownerID, trapID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.TriggerEvent
	for rows.Next() {
		var e models.TriggerEvent
		if err := rows.Scan(&e.ID, &e.TrapID, &e.IP, &e.UserAgent, &e.Referer, &e.Location, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, ownerID, trapID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE canary_traps SET active = FALSE WHERE id = $1 AND owner_id = $2`, trapID, ownerID)
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
