// Package uploads provides the PostgreSQL-backed upload record store.
package uploads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

const selectColumns = `id, app_id, health_code, name, content_length, content_md5, content_type, status,
	metadata, requested_on, completed_on, completed_by, original_upload_id, validation_messages, version`

// PostgresRepository implements upload storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new upload with version 1.
func (r *PostgresRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, app_id, health_code, name, content_length, content_md5, content_type,
			status, metadata, requested_on, original_upload_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		upload.ID, upload.AppID, upload.HealthCode, upload.Name, upload.ContentLength, upload.ContentMD5,
		upload.ContentType, string(upload.Status), jsonArg(upload.Metadata), upload.RequestedOn, upload.OriginalUploadID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	upload.Version = 1
	return nil
}

// Get loads an upload by id. A missing row yields common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Upload, error) {
	query := `SELECT ` + selectColumns + ` FROM uploads WHERE id=$1`

	u, err := scanUpload(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return u, nil
}

// Complete moves an upload out of REQUESTED, guarded by the version the
// caller loaded. Losing the race is reported as CompletionAlreadyCompleted,
// not as an error. On success upload is updated in place.
func (r *PostgresRepository) Complete(ctx context.Context, upload *models.Upload, status models.UploadStatus,
	completedOn time.Time, completedBy models.UploadCompletedBy) (models.CompletionResult, error) {
	query := `
		UPDATE uploads
		SET status=$1, completed_on=$2, completed_by=$3, version=version+1
		WHERE id=$4 AND version=$5
	`
	res, err := r.db.ExecContext(ctx, query, string(status), completedOn, string(completedBy), upload.ID, upload.Version)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		upload.Status = status
		upload.CompletedOn = &completedOn
		upload.CompletedBy = completedBy
		upload.Version++
		return models.CompletionApplied, nil
	case 0:
		return models.CompletionAlreadyCompleted, nil
	default:
		return 0, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// RecordValidation stores the outcome reported by the validation pipeline.
// A stale version yields common.ErrVersionConflict.
func (r *PostgresRepository) RecordValidation(ctx context.Context, upload *models.Upload, status models.UploadStatus, messages []string) error {
	if messages == nil {
		messages = []string{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal validation messages: %w", err)
	}

	query := `
		UPDATE uploads
		SET status=$1, validation_messages=$2, version=version+1
		WHERE id=$3 AND version=$4
	`
	res, err := r.db.ExecContext(ctx, query, string(status), string(b), upload.ID, upload.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		upload.Status = status
		upload.ValidationMessages = messages
		upload.Version++
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// ListByHealthCode returns uploads of one participant requested in [start, end).
func (r *PostgresRepository) ListByHealthCode(ctx context.Context, appID, healthCode string, start, end time.Time) ([]*models.Upload, error) {
	query := `SELECT ` + selectColumns + ` FROM uploads
		WHERE app_id=$1 AND health_code=$2 AND requested_on >= $3 AND requested_on < $4
		ORDER BY requested_on`

	rows, err := r.db.QueryContext(ctx, query, appID, healthCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (*models.Upload, error) {
	var (
		u           models.Upload
		status      string
		completedBy string
		metadata    []byte
		messages    []byte
		completedOn sql.NullTime
	)
	if err := s.Scan(
		&u.ID, &u.AppID, &u.HealthCode, &u.Name, &u.ContentLength, &u.ContentMD5, &u.ContentType, &status,
		&metadata, &u.RequestedOn, &completedOn, &completedBy, &u.OriginalUploadID, &messages, &u.Version,
	); err != nil {
		return nil, err
	}

	u.Status = models.UploadStatus(status)
	u.CompletedBy = models.UploadCompletedBy(completedBy)
	if len(metadata) > 0 {
		u.Metadata = json.RawMessage(metadata)
	}
	if completedOn.Valid {
		t := completedOn.Time
		u.CompletedOn = &t
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &u.ValidationMessages); err != nil {
			return nil, fmt.Errorf("decode validation messages: %w", err)
		}
	}
	return &u, nil
}

// jsonArg passes raw JSON as text so the driver can cast it to jsonb.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
