// Package services contains the upload pipeline's business logic: upload
// sessions, completion, validation status, deduplication and adherence
// bookkeeping.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/cryptox"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/config"
	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/dmitrijs2005/bridgeupload/internal/server/objectstore"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ExportWorkerName is the worker that picks up completed uploads.
const ExportWorkerName = "UploadExportWorker"

// MaxListRange bounds the requested-on range of ListUploads.
const MaxListRange = 45 * 24 * time.Hour

// ObjectStore is the part of the object store gateway used by uploads.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentMD5, contentType string) (*objectstore.PresignedPut, error)
	HeadObject(ctx context.Context, key string) (*objectstore.ObjectMetadata, error)
}

// Dispatcher enqueues work items for asynchronous workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, service string, body any) error
}

// Reconciler records adherence for a completed upload.
type Reconciler interface {
	Reconcile(ctx context.Context, upload *models.Upload) ReconcileOutcome
}

// UploadExportRequest is the body of the export work item.
type UploadExportRequest struct {
	AppID      string `json:"appId"`
	UploadID   string `json:"uploadId"`
	HealthCode string `json:"healthCode"`
	Redrive    bool   `json:"redrive"`
}

// UploadService drives an upload from session request to export dispatch.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	store       ObjectStore
	dispatcher  Dispatcher
	dedupe      *DedupeLedger
	reconciler  Reconciler
	logger      logging.Logger
	metrics     *metrics.Metrics

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, store ObjectStore,
	dispatcher Dispatcher, dedupe *DedupeLedger, reconciler Reconciler, logger logging.Logger, mt *metrics.Metrics) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: m,
		config:      cfg,
		store:       store,
		dispatcher:  dispatcher,
		dedupe:      dedupe,
		reconciler:  reconciler,
		logger:      logger,
		metrics:     mt,
		now:         time.Now,
		newID:       uuid.NewString,
		sleep:       sleepContext,
	}
}

// CreateUpload hands out an upload session. An identical request still in
// REQUESTED is reused; an identical request that already completed yields a
// new upload pointing back at it.
func (s *UploadService) CreateUpload(ctx context.Context, appID, healthCode string, req models.UploadRequest) (*models.UploadSession, error) {
	if err := validateUploadRequest(req); err != nil {
		return nil, err
	}

	repo := s.repomanager.Uploads(s.db)
	requestedOn := s.now().UTC()
	prior := s.findPriorUpload(ctx, appID, healthCode, req.ContentMD5, requestedOn)

	var upload *models.Upload
	if prior != nil && prior.Status == models.UploadStatusRequested {
		upload = prior
		s.metrics.DedupeHits.WithLabelValues("reactivated").Inc()
		s.logger.Info(ctx, "reusing requested upload for identical content", "upload_id", upload.ID)
	} else {
		upload = &models.Upload{
			ID:            s.newID(),
			AppID:         appID,
			HealthCode:    healthCode,
			Name:          req.Name,
			ContentLength: req.ContentLength,
			ContentMD5:    req.ContentMD5,
			ContentType:   req.ContentType,
			Status:        models.UploadStatusRequested,
			Metadata:      req.Metadata,
			RequestedOn:   requestedOn,
		}
		if prior != nil {
			upload.OriginalUploadID = prior.ID
			s.metrics.DedupeHits.WithLabelValues("superseded").Inc()
			s.logger.Info(ctx, "duplicate upload requested",
				"upload_id", upload.ID, "original_upload_id", prior.ID, "original_status", string(prior.Status))
		}

		if err := repo.Create(ctx, upload); err != nil {
			return nil, fmt.Errorf("%w: create upload: %v", common.ErrorInternal, err)
		}

		if prior == nil {
			if err := s.dedupe.Register(ctx, healthCode, req.ContentMD5, requestedOn, upload.ID); err != nil {
				s.logger.Error(ctx, "dedupe registration failed", "upload_id", upload.ID, "error", err)
			}
		}
	}

	put, err := s.store.PresignPut(ctx, upload.ObjectKey(), req.ContentMD5, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.metrics.UploadsRequested.Inc()
	return &models.UploadSession{ID: upload.ID, URL: put.URL, Expires: put.Expires}, nil
}

// findPriorUpload consults the dedupe ledger. Every failure degrades to
// "no duplicate".
func (s *UploadService) findPriorUpload(ctx context.Context, appID, healthCode, contentMD5 string, requestedOn time.Time) *models.Upload {
	id, found, err := s.dedupe.Lookup(ctx, healthCode, contentMD5, requestedOn)
	if err != nil {
		s.logger.Error(ctx, "dedupe lookup failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	prior, err := s.repomanager.Uploads(s.db).Get(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "cannot load deduped upload", "upload_id", id, "error", err)
		return nil
	}
	if prior.AppID != appID || prior.HealthCode != healthCode {
		return nil
	}
	return prior
}

func validateUploadRequest(req models.UploadRequest) error {
	var problems []string
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	}
	if req.ContentLength <= 0 {
		problems = append(problems, "contentLength must be positive")
	}
	if !cryptox.IsContentMD5(req.ContentMD5) {
		problems = append(problems, "contentMd5 must be a base64 encoded MD5 digest")
	}
	if strings.TrimSpace(req.ContentType) == "" {
		problems = append(problems, "contentType is required")
	}
	if len(req.Metadata) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(req.Metadata, &obj); err != nil {
			problems = append(problems, "metadata must be a JSON object")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrorValidation, strings.Join(problems, "; "))
	}
	return nil
}

// CompleteUpload acknowledges that the client finished writing uploadID.
// Completing an upload that already left REQUESTED is a no-op unless
// redrive is set. A non-empty healthCode must own the upload; workers pass
// an empty one.
func (s *UploadService) CompleteUpload(ctx context.Context, appID, healthCode, uploadID string, completedBy models.UploadCompletedBy, redrive bool) error {
	upload, err := s.loadUpload(ctx, appID, healthCode, uploadID)
	if err != nil {
		return err
	}
	return s.complete(ctx, upload, completedBy, redrive)
}

// CompleteUploadFromStorageEvent completes the upload stored under
// objectKey on behalf of the storage-event trigger.
func (s *UploadService) CompleteUploadFromStorageEvent(ctx context.Context, objectKey string) error {
	upload, err := s.repomanager.Uploads(s.db).Get(ctx, objectKey)
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%w: upload %s", common.ErrorNotFound, objectKey)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return s.complete(ctx, upload, models.CompletedByStorageEvent, false)
}

func (s *UploadService) complete(ctx context.Context, upload *models.Upload, completedBy models.UploadCompletedBy, redrive bool) error {
	log := s.logger.With("upload_id", upload.ID, "completed_by", string(completedBy))

	if !upload.CanBeValidated() && !redrive {
		log.Info(ctx, "upload already completed, skipping", "status", string(upload.Status))
		s.metrics.Completions.WithLabelValues("skipped", string(completedBy)).Inc()
		return nil
	}

	obj, err := s.store.HeadObject(ctx, upload.ObjectKey())
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%w: upload object %s", common.ErrorNotFound, upload.ObjectKey())
	}
	if err != nil {
		return err
	}
	if obj.SSEAlgorithm != objectstore.MandatedSSE {
		log.Error(ctx, "upload object is not encrypted as required",
			"expected_sse", objectstore.MandatedSSE, "actual_sse", obj.SSEAlgorithm)
	}

	status := models.UploadStatusValidationInProgress
	if upload.OriginalUploadID != "" {
		status = models.UploadStatusDuplicate
	}

	result, err := s.repomanager.Uploads(s.db).Complete(ctx, upload, status, s.now().UTC(), completedBy)
	if err != nil {
		return fmt.Errorf("%w: complete upload: %v", common.ErrorInternal, err)
	}
	s.metrics.Completions.WithLabelValues(result.String(), string(completedBy)).Inc()
	if result == models.CompletionAlreadyCompleted {
		log.Info(ctx, "upload completed concurrently, skipping")
		return nil
	}

	if status == models.UploadStatusDuplicate {
		log.Info(ctx, "duplicate upload completed", "original_upload_id", upload.OriginalUploadID)
		return nil
	}

	if err := s.dispatcher.Dispatch(ctx, ExportWorkerName, UploadExportRequest{
		AppID:      upload.AppID,
		UploadID:   upload.ID,
		HealthCode: upload.HealthCode,
		Redrive:    redrive,
	}); err != nil {
		return err
	}
	log.Info(ctx, "upload completed", "redrive", redrive)

	s.reconciler.Reconcile(ctx, upload)
	return nil
}

// GetValidationStatus returns the validation view of uploadID.
func (s *UploadService) GetValidationStatus(ctx context.Context, appID, healthCode, uploadID string) (*models.UploadValidationStatus, error) {
	upload, err := s.loadUpload(ctx, appID, healthCode, uploadID)
	if err != nil {
		return nil, err
	}
	return models.ValidationStatusOf(upload), nil
}

// PollValidationStatusUntilComplete re-reads the validation status until it
// leaves VALIDATION_IN_PROGRESS. After PollMaxIterations in-progress reads,
// each followed by one PollInterval sleep, it gives up with common.ErrTimeout.
func (s *UploadService) PollValidationStatusUntilComplete(ctx context.Context, appID, healthCode, uploadID string) (*models.UploadValidationStatus, error) {
	for i := 0; i < s.config.PollMaxIterations; i++ {
		st, err := s.GetValidationStatus(ctx, appID, healthCode, uploadID)
		if err != nil {
			return nil, err
		}
		if st.Status != models.UploadStatusValidationInProgress {
			return st, nil
		}
		if err := s.sleep(ctx, s.config.PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: upload %s still validating after %d polls", common.ErrTimeout, uploadID, s.config.PollMaxIterations)
}

// RecordValidationResult stores the verdict of the validation pipeline.
func (s *UploadService) RecordValidationResult(ctx context.Context, uploadID string, status models.UploadStatus, messages []string) error {
	if status != models.UploadStatusSucceeded && status != models.UploadStatusValidationFailed {
		return fmt.Errorf("%w: status %q is not a validation result", common.ErrorValidation, status)
	}

	repo := s.repomanager.Uploads(s.db)
	upload, err := repo.Get(ctx, uploadID)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if upload.Status != models.UploadStatusValidationInProgress {
		return fmt.Errorf("%w: upload %s is %s", common.ErrVersionConflict, uploadID, upload.Status)
	}

	if err := repo.RecordValidation(ctx, upload, status, messages); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	s.metrics.ValidationResults.WithLabelValues(string(status)).Inc()
	s.logger.Info(ctx, "validation result recorded", "upload_id", uploadID, "status", string(status))
	return nil
}

// ListUploads returns the participant's uploads requested in [start, end).
func (s *UploadService) ListUploads(ctx context.Context, appID, healthCode string, start, end time.Time) ([]*models.Upload, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: endTime must be after startTime", common.ErrorValidation)
	}
	if end.Sub(start) > MaxListRange {
		return nil, fmt.Errorf("%w: time range exceeds %d days", common.ErrorValidation, int(MaxListRange.Hours()/24))
	}

	list, err := s.repomanager.Uploads(s.db).ListByHealthCode(ctx, appID, healthCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return list, nil
}

// loadUpload hides uploads of other apps, and of other participants when
// healthCode is set, behind common.ErrorNotFound.
func (s *UploadService) loadUpload(ctx context.Context, appID, healthCode, uploadID string) (*models.Upload, error) {
	upload, err := s.repomanager.Uploads(s.db).Get(ctx, uploadID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if upload.AppID != appID {
		return nil, common.ErrorNotFound
	}
	if healthCode != "" && upload.HealthCode != healthCode {
		s.logger.Warn(ctx, "upload requested by non-owner", "upload_id", uploadID)
		return nil, common.ErrorNotFound
	}
	return upload, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
