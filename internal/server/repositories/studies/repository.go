package studies

import "context"

type Repository interface {
	StudyIDsForSchedule(ctx context.Context, appID, scheduleGUID string) ([]string, error)
}
