package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ReconcileOutcome says how far reconciliation of one upload got.
type ReconcileOutcome string

const (
	ReconcileNoMetadata        ReconcileOutcome = "no_metadata"
	ReconcileMalformedMetadata ReconcileOutcome = "malformed_metadata"
	ReconcileNoAccount         ReconcileOutcome = "no_account"
	ReconcileNoTimeline        ReconcileOutcome = "no_timeline"
	ReconcileNoStudy           ReconcileOutcome = "no_study"
	ReconcileAmbiguousStudy    ReconcileOutcome = "ambiguous_study"
	ReconcileCreated           ReconcileOutcome = "created"
	ReconcileUpdated           ReconcileOutcome = "updated"
	ReconcileFailed            ReconcileOutcome = "failed"
)

// maxReconcileAttempts bounds search-and-save rounds lost to concurrent writers.
const maxReconcileAttempts = 3

// AdherenceReconciler stamps the adherence record of the scheduled instance
// an upload reports against. It is best-effort: every problem is logged and
// reflected in the outcome, none is returned as an error.
type AdherenceReconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timelines   TimelineLookup
	logger      logging.Logger
	metrics     *metrics.Metrics
	newID       func() string
	now         func() time.Time
}

func NewAdherenceReconciler(db *sql.DB, m repomanager.RepositoryManager, timelines TimelineLookup,
	logger logging.Logger, mt *metrics.Metrics) *AdherenceReconciler {
	return &AdherenceReconciler{
		db:          db,
		repomanager: m,
		timelines:   timelines,
		logger:      logger,
		metrics:     mt,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Reconcile finds or creates the adherence record matching the upload's
// instance and event timestamp and records the upload against it.
func (r *AdherenceReconciler) Reconcile(ctx context.Context, upload *models.Upload) ReconcileOutcome {
	outcome := r.reconcile(ctx, upload)
	r.metrics.AdherenceReconciled.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (r *AdherenceReconciler) reconcile(ctx context.Context, upload *models.Upload) ReconcileOutcome {
	log := r.logger.With("upload_id", upload.ID)

	meta, ok, err := models.ParseAdherenceMetadata(upload.Metadata)
	if err != nil {
		var mte *models.MalformedTimestampError
		if errors.As(err, &mte) {
			log.Error(ctx, "malformed adherence timestamp", "field", mte.Field, "value", mte.Value)
		} else {
			log.Error(ctx, "cannot parse adherence metadata", "error", err)
		}
		return ReconcileMalformedMetadata
	}
	if !ok {
		log.Info(ctx, "upload carries no adherence metadata")
		return ReconcileNoMetadata
	}
	log = log.With("instance_guid", meta.InstanceGUID)

	userID, err := r.repomanager.Accounts(r.db).UserIDForHealthCode(ctx, upload.AppID, upload.HealthCode)
	if errors.Is(err, common.ErrorNotFound) {
		log.Info(ctx, "no account for health code")
		return ReconcileNoAccount
	}
	if err != nil {
		log.Error(ctx, "account lookup failed", "error", err)
		return ReconcileFailed
	}

	tm, err := r.timelines.GetByInstanceGUID(ctx, upload.AppID, meta.InstanceGUID)
	if errors.Is(err, common.ErrorNotFound) {
		log.Info(ctx, "no timeline metadata for instance")
		return ReconcileNoTimeline
	}
	if err != nil {
		log.Error(ctx, "timeline lookup failed", "error", err)
		return ReconcileFailed
	}

	studyIDs, err := r.repomanager.Studies(r.db).StudyIDsForSchedule(ctx, upload.AppID, tm.ScheduleGUID)
	if err != nil {
		log.Error(ctx, "study lookup failed", "error", err)
		return ReconcileFailed
	}
	switch len(studyIDs) {
	case 0:
		log.Info(ctx, "schedule belongs to no study", "schedule_guid", tm.ScheduleGUID)
		return ReconcileNoStudy
	case 1:
	default:
		log.Warn(ctx, "schedule shared by several studies, adherence not recorded",
			"schedule_guid", tm.ScheduleGUID, "study_ids", studyIDs)
		return ReconcileAmbiguousStudy
	}
	studyID := studyIDs[0]

	query := models.AdherenceQuery{
		AppID:         upload.AppID,
		StudyID:       studyID,
		UserID:        userID,
		InstanceGUIDs: []string{meta.InstanceGUID},
	}
	if tm.TimeWindowPersistent {
		startedOn := meta.StartedOn
		query.StartedOn = &startedOn
	}

	uploadedOn := r.now().UTC()
	if upload.CompletedOn != nil {
		uploadedOn = *upload.CompletedOn
	}

	var (
		outcome ReconcileOutcome
		batch   []*models.AdherenceRecord
	)
	for attempt := 1; ; attempt++ {
		existing, err := r.repomanager.Adherence(r.db).Search(ctx, query)
		if err != nil {
			log.Error(ctx, "adherence search failed", "error", err)
			return ReconcileFailed
		}

		outcome, batch = ReconcileUpdated, nil
		for _, rec := range existing {
			if rec.EventTimestamp.Equal(meta.EventTimestamp) {
				rec.UploadedOn = &uploadedOn
				rec.UploadIDs = append(rec.UploadIDs, upload.ID)
				batch = append(batch, rec)
			}
		}
		if len(batch) == 0 {
			outcome = ReconcileCreated
			batch = append(batch, r.newRecord(upload.AppID, studyID, userID, meta, tm.TimeWindowPersistent, uploadedOn, upload.ID))
		}

		err = r.save(ctx, batch)
		if err == nil {
			break
		}
		// A concurrent report created or bumped the record; search again.
		if errors.Is(err, common.ErrVersionConflict) && attempt < maxReconcileAttempts {
			log.Info(ctx, "adherence record changed concurrently, retrying", "attempt", attempt)
			continue
		}
		log.Error(ctx, "adherence update failed", "error", err)
		return ReconcileFailed
	}

	log.Info(ctx, "adherence recorded", "study_id", studyID, "outcome", string(outcome), "records", len(batch))
	return outcome
}

func (r *AdherenceReconciler) save(ctx context.Context, batch []*models.AdherenceRecord) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repomanager.Adherence(tx)
		for _, rec := range batch {
			if err := repo.CreateOrUpdate(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AdherenceReconciler) newRecord(appID, studyID, userID string, meta models.AdherenceMetadata,
	persistent bool, uploadedOn time.Time, uploadID string) *models.AdherenceRecord {
	startedOn := meta.StartedOn
	instanceTimestamp := meta.EventTimestamp
	if persistent {
		instanceTimestamp = startedOn
	}
	return &models.AdherenceRecord{
		ID:                r.newID(),
		AppID:             appID,
		StudyID:           studyID,
		UserID:            userID,
		InstanceGUID:      meta.InstanceGUID,
		EventTimestamp:    meta.EventTimestamp,
		InstanceTimestamp: instanceTimestamp,
		StartedOn:         &startedOn,
		UploadedOn:        &uploadedOn,
		UploadIDs:         []string{uploadID},
	}
}
