// Package adherence stores schedule adherence records.
package adherence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

// PostgresRepository implements adherence storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Search returns records of one user in one study, optionally narrowed to
// a set of instances and to an exact started-on instant.
func (r *PostgresRepository) Search(ctx context.Context, q models.AdherenceQuery) ([]*models.AdherenceRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, app_id, study_id, user_id, instance_guid, event_timestamp, instance_timestamp,
		started_on, uploaded_on, upload_ids, version
		FROM adherence_records WHERE app_id=$1 AND study_id=$2 AND user_id=$3`)
	args := []any{q.AppID, q.StudyID, q.UserID}

	if len(q.InstanceGUIDs) > 0 {
		sb.WriteString(" AND instance_guid IN (")
		for i, g := range q.InstanceGUIDs {
			if i > 0 {
				sb.WriteString(", ")
			}
			args = append(args, g)
			sb.WriteString("$" + strconv.Itoa(len(args)))
		}
		sb.WriteString(")")
	}
	if q.StartedOn != nil {
		args = append(args, *q.StartedOn)
		sb.WriteString(" AND started_on=$" + strconv.Itoa(len(args)))
	}
	sb.WriteString(" ORDER BY event_timestamp")

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select adherence records: %w", err)
	}
	defer rows.Close()

	var result []*models.AdherenceRecord
	for rows.Next() {
		var (
			rec        models.AdherenceRecord
			startedOn  sql.NullTime
			uploadedOn sql.NullTime
			uploadIDs  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.AppID, &rec.StudyID, &rec.UserID, &rec.InstanceGUID,
			&rec.EventTimestamp, &rec.InstanceTimestamp, &startedOn, &uploadedOn, &uploadIDs, &rec.Version); err != nil {
			return nil, err
		}
		if startedOn.Valid {
			t := startedOn.Time
			rec.StartedOn = &t
		}
		if uploadedOn.Valid {
			t := uploadedOn.Time
			rec.UploadedOn = &t
		}
		if len(uploadIDs) > 0 {
			if err := json.Unmarshal(uploadIDs, &rec.UploadIDs); err != nil {
				return nil, fmt.Errorf("decode upload ids: %w", err)
			}
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateOrUpdate inserts a record with Version 0 and otherwise updates it
// guarded by its version. A stale version yields common.ErrVersionConflict.
func (r *PostgresRepository) CreateOrUpdate(ctx context.Context, record *models.AdherenceRecord) error {
	ids := record.UploadIDs
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal upload ids: %w", err)
	}

	var res sql.Result
	if record.Version == 0 {
		query := `
			INSERT INTO adherence_records (id, app_id, study_id, user_id, instance_guid, event_timestamp,
				instance_timestamp, started_on, uploaded_on, upload_ids, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
			ON CONFLICT DO NOTHING
		`
		res, err = r.db.ExecContext(ctx, query, record.ID, record.AppID, record.StudyID, record.UserID, record.InstanceGUID,
			record.EventTimestamp, record.InstanceTimestamp, timeArg(record.StartedOn), timeArg(record.UploadedOn), string(b))
	} else {
		query := `
			UPDATE adherence_records
			SET uploaded_on=$1, upload_ids=$2, version=version+1
			WHERE id=$3 AND version=$4
		`
		res, err = r.db.ExecContext(ctx, query, timeArg(record.UploadedOn), string(b), record.ID, record.Version)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		record.Version++
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
