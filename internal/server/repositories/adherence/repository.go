package adherence

import (
	"context"

	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

type Repository interface {
	Search(ctx context.Context, q models.AdherenceQuery) ([]*models.AdherenceRecord, error)
	CreateOrUpdate(ctx context.Context, record *models.AdherenceRecord) error
}
