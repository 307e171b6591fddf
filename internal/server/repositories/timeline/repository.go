package timeline

import (
	"context"

	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

type Repository interface {
	GetByInstanceGUID(ctx context.Context, appID, instanceGUID string) (*models.TimelineMetadata, error)
}
