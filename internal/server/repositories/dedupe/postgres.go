// Package dedupe stores content-hash ledger entries used to recognise
// resubmitted uploads.
package dedupe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

// PostgresRepository implements the ledger over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes a ledger entry. Entries are never updated; inserting the same
// (health code, hash, instant) twice surfaces the driver's unique violation.
func (r *PostgresRepository) Insert(ctx context.Context, entry models.DedupeEntry) error {
	query := `INSERT INTO upload_dedupe (health_code, content_md5, requested_on, upload_id) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, entry.HealthCode, entry.ContentMD5, entry.RequestedOn, entry.UploadID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindLatest returns the most recent entry for the exact hash requested
// within [from, to]. No match yields common.ErrorNotFound.
func (r *PostgresRepository) FindLatest(ctx context.Context, healthCode, contentMD5 string, from, to time.Time) (*models.DedupeEntry, error) {
	query := `
		SELECT health_code, content_md5, requested_on, upload_id FROM upload_dedupe
		WHERE health_code=$1 AND content_md5=$2 AND requested_on >= $3 AND requested_on <= $4
		ORDER BY requested_on DESC
		LIMIT 1
	`
	var e models.DedupeEntry
	err := r.db.QueryRowContext(ctx, query, healthCode, contentMD5, from, to).
		Scan(&e.HealthCode, &e.ContentMD5, &e.RequestedOn, &e.UploadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select dedupe entry: %w", err)
	}
	return &e, nil
}
