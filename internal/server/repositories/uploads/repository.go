package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, upload *models.Upload) error
	Get(ctx context.Context, id string) (*models.Upload, error)
	Complete(ctx context.Context, upload *models.Upload, status models.UploadStatus, completedOn time.Time, completedBy models.UploadCompletedBy) (models.CompletionResult, error)
	RecordValidation(ctx context.Context, upload *models.Upload, status models.UploadStatus, messages []string) error
	ListByHealthCode(ctx context.Context, appID, healthCode string, start, end time.Time) ([]*models.Upload, error)
}
