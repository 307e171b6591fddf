// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/server/migrations"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/adherence"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/dedupe"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/studies"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/timeline"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/uploads"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Uploads returns an uploads.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Uploads(db dbx.DBTX) uploads.Repository {
	return uploads.NewPostgresRepository(db)
}

// Dedupe returns a dedupe.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Dedupe(db dbx.DBTX) dedupe.Repository {
	return dedupe.NewPostgresRepository(db)
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// Timeline returns a timeline.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Timeline(db dbx.DBTX) timeline.Repository {
	return timeline.NewPostgresRepository(db)
}

// Studies returns a studies.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Studies(db dbx.DBTX) studies.Repository {
	return studies.NewPostgresRepository(db)
}

// Adherence returns an adherence.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Adherence(db dbx.DBTX) adherence.Repository {
	return adherence.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
