// Package studies maps schedules to the studies that use them.
package studies

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// StudyIDsForSchedule lists every study of appID using scheduleGUID. A
// schedule may be shared, so the result can hold more than one id.
func (r *PostgresRepository) StudyIDsForSchedule(ctx context.Context, appID, scheduleGUID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT study_id FROM study_schedules WHERE app_id=$1 AND schedule_guid=$2 ORDER BY study_id`, appID, scheduleGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to select studies: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
