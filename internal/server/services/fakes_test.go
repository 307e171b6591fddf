package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/config"
	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/dmitrijs2005/bridgeupload/internal/server/objectstore"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/adherence"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/dedupe"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/studies"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/timeline"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/uploads"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- uploads ---

type memUploads struct {
	mu        sync.Mutex
	rows      map[string]models.Upload
	getErr    error
	createErr error
}

func newMemUploads(seed ...models.Upload) *memUploads {
	m := &memUploads{rows: map[string]models.Upload{}}
	for _, u := range seed {
		if u.Version == 0 {
			u.Version = 1
		}
		m.rows[u.ID] = u
	}
	return m
}

func (m *memUploads) Create(ctx context.Context, u *models.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	u.Version = 1
	m.rows[u.ID] = *u
	return nil
}

func (m *memUploads) Get(ctx context.Context, id string) (*models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (m *memUploads) Complete(ctx context.Context, u *models.Upload, status models.UploadStatus, at time.Time, by models.UploadCompletedBy) (models.CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[u.ID]
	if !ok || row.Version != u.Version {
		return models.CompletionAlreadyCompleted, nil
	}
	row.Status, row.CompletedOn, row.CompletedBy = status, &at, by
	row.Version++
	m.rows[u.ID] = row
	u.Status, u.CompletedOn, u.CompletedBy, u.Version = status, &at, by, row.Version
	return models.CompletionApplied, nil
}

func (m *memUploads) RecordValidation(ctx context.Context, u *models.Upload, status models.UploadStatus, messages []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[u.ID]
	if !ok || row.Version != u.Version {
		return common.ErrVersionConflict
	}
	row.Status, row.ValidationMessages = status, messages
	row.Version++
	m.rows[u.ID] = row
	u.Status, u.Version = status, row.Version
	return nil
}

func (m *memUploads) ListByHealthCode(ctx context.Context, appID, healthCode string, start, end time.Time) ([]*models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Upload
	for _, u := range m.rows {
		if u.AppID == appID && u.HealthCode == healthCode && !u.RequestedOn.Before(start) && u.RequestedOn.Before(end) {
			u := u
			out = append(out, &u)
		}
	}
	return out, nil
}

func (m *memUploads) row(id string) models.Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// --- dedupe ---

type memDedupe struct {
	entries   []models.DedupeEntry
	findErr   error
	insertErr error
}

func (m *memDedupe) Insert(ctx context.Context, e models.DedupeEntry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, x := range m.entries {
		if x.HealthCode == e.HealthCode && x.ContentMD5 == e.ContentMD5 && x.RequestedOn.Equal(e.RequestedOn) {
			return fmt.Errorf("db error: %w", &pgconn.PgError{Code: "23505"})
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memDedupe) FindLatest(ctx context.Context, healthCode, contentMD5 string, from, to time.Time) (*models.DedupeEntry, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var best *models.DedupeEntry
	for i := range m.entries {
		e := m.entries[i]
		if e.HealthCode != healthCode || e.ContentMD5 != contentMD5 || e.RequestedOn.Before(from) || e.RequestedOn.After(to) {
			continue
		}
		if best == nil || e.RequestedOn.After(best.RequestedOn) {
			best = &e
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	return best, nil
}

// --- scheduling lookups ---

type fakeAccounts struct {
	ids map[string]string
	err error
}

func (f *fakeAccounts) UserIDForHealthCode(ctx context.Context, appID, healthCode string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.ids[healthCode]
	if !ok {
		return "", common.ErrorNotFound
	}
	return id, nil
}

type fakeTimeline struct {
	byGUID map[string]*models.TimelineMetadata
	calls  int
	err    error
}

func (f *fakeTimeline) GetByInstanceGUID(ctx context.Context, appID, guid string) (*models.TimelineMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	tm, ok := f.byGUID[guid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return tm, nil
}

type fakeStudies struct {
	bySchedule map[string][]string
	err        error
}

func (f *fakeStudies) StudyIDsForSchedule(ctx context.Context, appID, scheduleGUID string) ([]string, error) {
	return f.bySchedule[scheduleGUID], f.err
}

type memAdherence struct {
	records   []*models.AdherenceRecord
	queries   []models.AdherenceQuery
	saved     []*models.AdherenceRecord
	searchErr error
	saveErr   error
	// raced is stored by a concurrent writer on the next insert, which then
	// loses with common.ErrVersionConflict.
	raced *models.AdherenceRecord
}

func (m *memAdherence) Search(ctx context.Context, q models.AdherenceQuery) ([]*models.AdherenceRecord, error) {
	m.queries = append(m.queries, q)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []*models.AdherenceRecord
	for _, r := range m.records {
		if r.AppID != q.AppID || r.StudyID != q.StudyID || r.UserID != q.UserID {
			continue
		}
		if q.StartedOn != nil && (r.StartedOn == nil || !r.StartedOn.Equal(*q.StartedOn)) {
			continue
		}
		c := *r
		c.UploadIDs = append([]string(nil), r.UploadIDs...)
		out = append(out, &c)
	}
	return out, nil
}

func (m *memAdherence) CreateOrUpdate(ctx context.Context, r *models.AdherenceRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if r.Version == 0 && m.raced != nil {
		m.records = append(m.records, m.raced)
		m.raced = nil
		return common.ErrVersionConflict
	}
	r.Version++
	m.saved = append(m.saved, r)
	return nil
}

// --- repository manager ---

type fakeRepoManager struct {
	repomanager.RepositoryManager
	uploads   *memUploads
	dedupe    *memDedupe
	accounts  *fakeAccounts
	timeline  *fakeTimeline
	studies   *fakeStudies
	adherence *memAdherence
}

func (m *fakeRepoManager) Uploads(dbx.DBTX) uploads.Repository     { return m.uploads }
func (m *fakeRepoManager) Dedupe(dbx.DBTX) dedupe.Repository       { return m.dedupe }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository   { return m.accounts }
func (m *fakeRepoManager) Timeline(dbx.DBTX) timeline.Repository   { return m.timeline }
func (m *fakeRepoManager) Studies(dbx.DBTX) studies.Repository     { return m.studies }
func (m *fakeRepoManager) Adherence(dbx.DBTX) adherence.Repository { return m.adherence }

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		uploads:   newMemUploads(),
		dedupe:    &memDedupe{},
		accounts:  &fakeAccounts{ids: map[string]string{}},
		timeline:  &fakeTimeline{byGUID: map[string]*models.TimelineMetadata{}},
		studies:   &fakeStudies{bySchedule: map[string][]string{}},
		adherence: &memAdherence{},
	}
}

// --- collaborators ---

type fakeStore struct {
	presignErr error
	headErr    error
	sse        string
	heads      int
}

func (f *fakeStore) PresignPut(ctx context.Context, key, contentMD5, contentType string) (*objectstore.PresignedPut, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	return &objectstore.PresignedPut{URL: "https://s3.test/uploads/" + key, Expires: fixedNow.Add(24 * time.Hour)}, nil
}

func (f *fakeStore) HeadObject(ctx context.Context, key string) (*objectstore.ObjectMetadata, error) {
	f.heads++
	if f.headErr != nil {
		return nil, f.headErr
	}
	sse := f.sse
	if sse == "" {
		sse = objectstore.MandatedSSE
	}
	return &objectstore.ObjectMetadata{SSEAlgorithm: sse}, nil
}

type dispatchCall struct {
	service string
	body    any
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, service string, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, f.err)
	}
	f.calls = append(f.calls, dispatchCall{service: service, body: body})
	return nil
}

type fakeReconciler struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeReconciler) Reconcile(ctx context.Context, u *models.Upload) ReconcileOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, u.ID)
	return ReconcileCreated
}

// --- helpers ---

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// validMD5 is base64 of the MD5 of an empty body.
const validMD5 = "1B2M2Y8AsgTpgAmY7PhCfg=="

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newObservedLogger() (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewZapLogger(zap.New(core)), logs
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func testConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.PollInterval = 10 * time.Millisecond
	c.PollMaxIterations = 3
	return &c
}

type uploadFixture struct {
	svc        *UploadService
	repos      *fakeRepoManager
	store      *fakeStore
	dispatcher *fakeDispatcher
	reconciler *fakeReconciler
	logs       *observer.ObservedLogs
	sleeps     []time.Duration
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	db, _ := newMockDB(t)
	logger, logs := newObservedLogger()
	cfg := testConfig()

	f := &uploadFixture{
		repos:      newFakeRepoManager(),
		store:      &fakeStore{},
		dispatcher: &fakeDispatcher{},
		reconciler: &fakeReconciler{},
		logs:       logs,
	}
	ledger := NewDedupeLedger(db, f.repos, cfg.DedupeWindow, logger)
	f.svc = NewUploadService(db, f.repos, cfg, f.store, f.dispatcher, ledger, f.reconciler, logger, newTestMetrics())

	ids := 0
	f.svc.newID = func() string {
		ids++
		return fmt.Sprintf("upload-%d", ids)
	}
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

var errBoom = errors.New("boom")
