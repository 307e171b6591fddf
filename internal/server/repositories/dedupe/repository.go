package dedupe

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, entry models.DedupeEntry) error
	FindLatest(ctx context.Context, healthCode, contentMD5 string, from, to time.Time) (*models.DedupeEntry, error)
}
