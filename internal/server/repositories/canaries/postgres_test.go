package canaries

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trapColumns = []string{"id", "owner_id", "label", "trap_type", "token", "active", "trigger_count", "last_triggered_at", "created_at"}

func setup(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := setup(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT\s+INTO\s+canary_traps`).
		WithArgs("c-1", "u-1", "aws keys", models.TrapTypeAPIKey, "tok").
		WillReturnRows(sqlmock.NewRows([]string{"active", "trigger_count", "created_at"}).AddRow(true, 0, now))

	trap := &models.CanaryTrap{ID: "c-1", OwnerID: "u-1", Label: "aws keys", Type: models.TrapTypeAPIKey, Token: "tok"}
	require.NoError(t, repo.Create(context.Background(), trap))
	assert.True(t, trap.Active)
	assert.Equal(t, now, trap.CreatedAt)
}

func TestFindActiveByTokenForUpdate(t *testing.T) {
	repo, mock := setup(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE\s+token\s*=\s*\$1\s+AND\s+active\s+FOR\s+UPDATE`).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(trapColumns).AddRow("c-1", "u-1", "l", "url", "tok", true, 2, now, now))

	trap, err := repo.FindActiveByTokenForUpdate(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, trap.LastTriggeredAt)
	assert.Equal(t, 2, trap.TriggerCount)
}

func TestFindActiveByTokenForUpdate_NotFound(t *testing.T) {
	repo, mock := setup(t)
	mock.ExpectQuery(`FROM\s+canary_traps`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByTokenForUpdate(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecordTriggerAndAddEvent(t *testing.T) {
	repo, mock := setup(t)
	at := time.Now()

	mock.ExpectQuery(`UPDATE\s+canary_traps\s+SET\s+trigger_count\s*=\s*trigger_count\s*\+\s*1`).WithArgs("c-1", at).
		WillReturnRows(sqlmock.NewRows([]string{"trigger_count"}).AddRow(3))
	mock.ExpectExec(`INSERT\s+INTO\s+canary_trigger_events`).
		WithArgs("e-1", "c-1", "9.9.9.9", "bot", "", "", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.RecordTrigger(context.Background(), "c-1", at)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.AddEvent(context.Background(), &models.TriggerEvent{
		ID: "e-1", TrapID: "c-1", IP: "9.9.9.9", UserAgent: "bot", CreatedAt: at,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByOwner_NeverTriggered(t *testing.T) {
	repo, mock := setup(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE\s+owner_id\s*=\s*\$1`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(trapColumns).AddRow("c-1", "u-1", "l", "document", "tok", true, 0, nil, now))

	got, err := repo.ListByOwner(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].LastTriggeredAt)
}

func TestEvents_ScopedToOwner(t *testing.T) {
	repo, mock := setup(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("c-1", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`WHERE\s+t\.owner_id\s*=\s*\$1\s+AND\s+e\.trap_id\s*=\s*\$2`).WithArgs("u-1", "c-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trap_id", "ip", "user_agent", "referer", "location", "created_at"}).
			AddRow("e-1", "c-1", "1.1.1.1", "ua", "https://ref", "Oslo, NO", now))

	got, err := repo.Events(context.Background(), "u-1", "c-1", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://ref", got[0].Referer)
}

func TestEvents_ForeignTrapNotFound(t *testing.T) {
	repo, mock := setup(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("c-1", "u-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.Events(context.Background(), "u-2", "c-1", 50)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivate(t *testing.T) {
	repo, mock := setup(t)

	mock.ExpectExec(`UPDATE\s+canary_traps\s+SET\s+active\s*=\s*FALSE`).WithArgs("c-1", "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+canary_traps\s+SET\s+active\s*=\s*FALSE`).WithArgs("c-2", "u-1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Deactivate(context.Background(), "u-1", "c-1"))
	assert.ErrorIs(t, repo.Deactivate(context.Background(), "u-1", "c-2"), common.ErrorNotFound)
}
