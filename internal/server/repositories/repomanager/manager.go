package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/canaries"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/duress"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/entries"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/loginevents"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// use the same code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	LoginEvents(db dbx.DBTX) loginevents.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Duress(db dbx.DBTX) duress.Repository
	Secrets(db dbx.DBTX) secrets.Repository
	Canaries(db dbx.DBTX) canaries.Repository
	Entries(db dbx.DBTX) entries.Repository
	Files(db dbx.DBTX) files.Repository
}
