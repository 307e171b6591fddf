package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/repomanager"
)

// DedupeLedger recognises resubmissions of identical content by the same
// participant. Only exact hash matches inside the window count, so a miss
// is always safe.
type DedupeLedger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	window      time.Duration
	logger      logging.Logger
}

func NewDedupeLedger(db *sql.DB, m repomanager.RepositoryManager, window time.Duration, logger logging.Logger) *DedupeLedger {
	return &DedupeLedger{db: db, repomanager: m, window: window, logger: logger}
}

// Lookup returns the upload id of the most recent request for the same
// (healthCode, contentMD5) in [requestedOn-window, requestedOn].
func (l *DedupeLedger) Lookup(ctx context.Context, healthCode, contentMD5 string, requestedOn time.Time) (string, bool, error) {
	entry, err := l.repomanager.Dedupe(l.db).FindLatest(ctx, healthCode, contentMD5, requestedOn.Add(-l.window), requestedOn)
	if errors.Is(err, common.ErrorNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedupe lookup: %w", err)
	}
	return entry.UploadID, true, nil
}

// Register records uploadID as the first carrier of contentMD5. Registering
// the same entry twice is not an error.
func (l *DedupeLedger) Register(ctx context.Context, healthCode, contentMD5 string, requestedOn time.Time, uploadID string) error {
	err := l.repomanager.Dedupe(l.db).Insert(ctx, models.DedupeEntry{
		HealthCode:  healthCode,
		ContentMD5:  contentMD5,
		RequestedOn: requestedOn,
		UploadID:    uploadID,
	})
	if dbx.IsUniqueViolation(err) {
		l.logger.Debug(ctx, "dedupe entry already registered", "upload_id", uploadID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("dedupe register: %w", err)
	}
	return nil
}
