package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/adherence"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/dedupe"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/studies"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/timeline"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/uploads"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Uploads(db dbx.DBTX) uploads.Repository
	Dedupe(db dbx.DBTX) dedupe.Repository
	Accounts(db dbx.DBTX) accounts.Repository
	Timeline(db dbx.DBTX) timeline.Repository
	Studies(db dbx.DBTX) studies.Repository
	Adherence(db dbx.DBTX) adherence.Repository
}
