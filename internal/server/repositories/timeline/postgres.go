// Package timeline reads timeline metadata: which schedule a scheduled
// instance belongs to and whether its window is persistent.
package timeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByInstanceGUID returns the metadata of one instance, or common.ErrorNotFound.
func (r *PostgresRepository) GetByInstanceGUID(ctx context.Context, appID, instanceGUID string) (*models.TimelineMetadata, error) {
	query := `
		SELECT instance_guid, app_id, schedule_guid, session_guid, assessment_guid, time_window_persistent
		FROM timeline_metadata WHERE app_id=$1 AND instance_guid=$2
	`
	var m models.TimelineMetadata
	err := r.db.QueryRowContext(ctx, query, appID, instanceGUID).Scan(
		&m.InstanceGUID, &m.AppID, &m.ScheduleGUID, &m.SessionGUID, &m.AssessmentGUID, &m.TimeWindowPersistent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select timeline metadata: %w", err)
	}
	return &m, nil
}
