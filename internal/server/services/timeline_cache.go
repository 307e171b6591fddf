package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/repomanager"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TimelineLookup resolves the timeline metadata of a scheduled instance.
type TimelineLookup interface {
	GetByInstanceGUID(ctx context.Context, appID, instanceGUID string) (*models.TimelineMetadata, error)
}

// TimelineCache is a per-process LRU with TTL in front of the timeline
// repository. Only found entries are cached; timelines are read-only here
// so staleness is bounded by the TTL.
type TimelineCache struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       *expirable.LRU[string, *models.TimelineMetadata]
	metrics     *metrics.Metrics
}

func NewTimelineCache(db *sql.DB, m repomanager.RepositoryManager, size int, ttl time.Duration, mt *metrics.Metrics) *TimelineCache {
	return &TimelineCache{
		db:          db,
		repomanager: m,
		cache:       expirable.NewLRU[string, *models.TimelineMetadata](size, nil, ttl),
		metrics:     mt,
	}
}

func (c *TimelineCache) GetByInstanceGUID(ctx context.Context, appID, instanceGUID string) (*models.TimelineMetadata, error) {
	key := appID + "/" + instanceGUID
	if v, ok := c.cache.Get(key); ok {
		c.metrics.TimelineCacheHits.Inc()
		return v, nil
	}
	c.metrics.TimelineCacheMisses.Inc()

	v, err := c.repomanager.Timeline(c.db).GetByInstanceGUID(ctx, appID, instanceGUID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}
