package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/server/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"
)

var (
	eventTS   = time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	startedTS = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

type reconcileFixture struct {
	r     *AdherenceReconciler
	repos *fakeRepoManager
	mock  sqlmock.Sqlmock
	logs  *observer.ObservedLogs
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	db, mock := newMockDB(t)
	logger, logs := newObservedLogger()
	repos := newFakeRepoManager()

	repos.accounts.ids["hc"] = "user-1"
	repos.timeline.byGUID["inst-1"] = &models.TimelineMetadata{InstanceGUID: "inst-1", AppID: "app", ScheduleGUID: "sched-1"}
	repos.studies.bySchedule["sched-1"] = []string{"study-1"}

	r := NewAdherenceReconciler(db, repos, repos.timeline, logger, newTestMetrics())
	r.newID = func() string { return "rec-new" }
	r.now = func() time.Time { return fixedNow }

	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return &reconcileFixture{r: r, repos: repos, mock: mock, logs: logs}
}

func completedUpload(id string) *models.Upload {
	completedOn := fixedNow
	meta, _ := json.Marshal(map[string]string{
		models.MetadataInstanceGUID:   "inst-1",
		models.MetadataEventTimestamp: eventTS.Format(time.RFC3339),
		models.MetadataStartedOn:      startedTS.Format(time.RFC3339),
	})
	return &models.Upload{
		ID: id, AppID: "app", HealthCode: "hc", Status: models.UploadStatusValidationInProgress,
		Metadata: meta, CompletedOn: &completedOn,
	}
}

func TestReconcile_CreatesRecord(t *testing.T) {
	f := newReconcileFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	outcome := f.r.Reconcile(context.Background(), completedUpload("u1"))
	assert.Equal(t, ReconcileCreated, outcome)

	require.Len(t, f.repos.adherence.saved, 1)
	rec := f.repos.adherence.saved[0]
	assert.Equal(t, "rec-new", rec.ID)
	assert.Equal(t, "study-1", rec.StudyID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "inst-1", rec.InstanceGUID)
	assert.True(t, rec.EventTimestamp.Equal(eventTS))
	assert.True(t, rec.InstanceTimestamp.Equal(eventTS))
	require.NotNil(t, rec.StartedOn)
	assert.True(t, rec.StartedOn.Equal(startedTS))
	require.NotNil(t, rec.UploadedOn)
	assert.Equal(t, fixedNow, *rec.UploadedOn)
	assert.Equal(t, []string{"u1"}, rec.UploadIDs)

	require.Len(t, f.repos.adherence.queries, 1)
	assert.Nil(t, f.repos.adherence.queries[0].StartedOn)
	assert.Equal(t, []string{"inst-1"}, f.repos.adherence.queries[0].InstanceGUIDs)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.r.metrics.AdherenceReconciled.WithLabelValues("created")))
}

func TestReconcile_UpdatesMatchingRecord(t *testing.T) {
	f := newReconcileFixture(t)
	originalStart := startedTS.Add(-time.Hour)
	f.repos.adherence.records = []*models.AdherenceRecord{
		{
			ID: "rec-1", AppID: "app", StudyID: "study-1", UserID: "user-1", InstanceGUID: "inst-1",
			EventTimestamp: eventTS, InstanceTimestamp: eventTS, StartedOn: &originalStart,
			UploadIDs: []string{"u0", "u1"}, Version: 3,
		},
		{
			ID: "rec-2", AppID: "app", StudyID: "study-1", UserID: "user-1", InstanceGUID: "inst-1",
			EventTimestamp: eventTS.Add(24 * time.Hour), Version: 1,
		},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	outcome := f.r.Reconcile(context.Background(), completedUpload("u1"))
	assert.Equal(t, ReconcileUpdated, outcome)

	require.Len(t, f.repos.adherence.saved, 1)
	rec := f.repos.adherence.saved[0]
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, int64(4), rec.Version)
	assert.True(t, rec.StartedOn.Equal(originalStart), "startedOn is left as first recorded")
	assert.Equal(t, fixedNow, *rec.UploadedOn)
	assert.Equal(t, []string{"u0", "u1", "u1"}, rec.UploadIDs)
}

func TestReconcile_PersistentWindowMatchesOnStartedOn(t *testing.T) {
	f := newReconcileFixture(t)
	f.repos.timeline.byGUID["inst-1"].TimeWindowPersistent = true
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	outcome := f.r.Reconcile(context.Background(), completedUpload("u1"))
	assert.Equal(t, ReconcileCreated, outcome)

	require.Len(t, f.repos.adherence.queries, 1)
	q := f.repos.adherence.queries[0]
	require.NotNil(t, q.StartedOn)
	assert.True(t, q.StartedOn.Equal(startedTS))

	require.Len(t, f.repos.adherence.saved, 1)
	assert.True(t, f.repos.adherence.saved[0].InstanceTimestamp.Equal(startedTS))
}

func TestReconcile_UsesNowWhenCompletionTimeMissing(t *testing.T) {
	f := newReconcileFixture(t)
	f.r.now = func() time.Time { return fixedNow.Add(time.Minute) }
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	u := completedUpload("u1")
	u.CompletedOn = nil
	f.r.Reconcile(context.Background(), u)

	require.Len(t, f.repos.adherence.saved, 1)
	assert.Equal(t, fixedNow.Add(time.Minute), *f.repos.adherence.saved[0].UploadedOn)
}

func TestReconcile_AmbiguousStudyIsSkipped(t *testing.T) {
	f := newReconcileFixture(t)
	f.repos.studies.bySchedule["sched-1"] = []string{"study-1", "study-2"}

	outcome := f.r.Reconcile(context.Background(), completedUpload("u1"))
	assert.Equal(t, ReconcileAmbiguousStudy, outcome)
	assert.Empty(t, f.repos.adherence.queries)
	assert.Empty(t, f.repos.adherence.saved)

	warns := f.logs.FilterMessage("schedule shared by several studies, adherence not recorded").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "sched-1", warns[0].ContextMap()["schedule_guid"])
}

func TestReconcile_StopsEarly(t *testing.T) {
	tests := []struct {
		setup func(f *reconcileFixture, u *models.Upload)
		name  string
		want  ReconcileOutcome
	}{
		{
			name: "no metadata",
			setup: func(f *reconcileFixture, u *models.Upload) {
				u.Metadata = nil
			},
			want: ReconcileNoMetadata,
		},
		{
			name: "missing key",
			setup: func(f *reconcileFixture, u *models.Upload) {
				u.Metadata = json.RawMessage(`{"instanceGuid":"inst-1","eventTimestamp":"2026-02-28T09:00:00Z"}`)
			},
			want: ReconcileNoMetadata,
		},
		{
			name: "malformed timestamp",
			setup: func(f *reconcileFixture, u *models.Upload) {
				u.Metadata = json.RawMessage(`{"instanceGuid":"inst-1","eventTimestamp":"2026-02-28","startedOn":"2026-03-01T08:00:00Z"}`)
			},
			want: ReconcileMalformedMetadata,
		},
		{
			name: "no account",
			setup: func(f *reconcileFixture, u *models.Upload) {
				u.HealthCode = "unknown"
			},
			want: ReconcileNoAccount,
		},
		{
			name: "no timeline",
			setup: func(f *reconcileFixture, u *models.Upload) {
				delete(f.repos.timeline.byGUID, "inst-1")
			},
			want: ReconcileNoTimeline,
		},
		{
			name: "no study",
			setup: func(f *reconcileFixture, u *models.Upload) {
				delete(f.repos.studies.bySchedule, "sched-1")
			},
			want: ReconcileNoStudy,
		},
		{
			name: "account lookup fails",
			setup: func(f *reconcileFixture, u *models.Upload) {
				f.repos.accounts.err = errBoom
			},
			want: ReconcileFailed,
		},
		{
			name: "search fails",
			setup: func(f *reconcileFixture, u *models.Upload) {
				f.repos.adherence.searchErr = errBoom
			},
			want: ReconcileFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture(t)
			u := completedUpload("u1")
			tt.setup(f, u)

			assert.Equal(t, tt.want, f.r.Reconcile(context.Background(), u))
			assert.Empty(t, f.repos.adherence.saved)
		})
	}
}

func TestReconcile_MalformedTimestampLogsFieldAndValue(t *testing.T) {
	f := newReconcileFixture(t)
	u := completedUpload("u1")
	u.Metadata = json.RawMessage(`{"instanceGuid":"inst-1","eventTimestamp":"2026-02-28T09:00:00Z","startedOn":"this morning"}`)

	f.r.Reconcile(context.Background(), u)

	entries := f.logs.FilterMessage("malformed adherence timestamp").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, models.MetadataStartedOn, fields["field"])
	assert.Equal(t, "this morning", fields["value"])
	assert.Equal(t, 0, f.repos.timeline.calls)
}

func TestReconcile_SaveFailureRollsBack(t *testing.T) {
	f := newReconcileFixture(t)
	f.repos.adherence.saveErr = errBoom
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	outcome := f.r.Reconcile(context.Background(), completedUpload("u1"))
	assert.Equal(t, ReconcileFailed, outcome)
	assert.Equal(t, 1, f.logs.FilterMessage("adherence update failed").Len())
}

func TestReconcile_LostInsertRaceUpdatesWinner(t *testing.T) {
	f := newReconcileFixture(t)
	f.repos.adherence.raced = &models.AdherenceRecord{
		ID: "rec-winner", AppID: "app", StudyID: "study-1", UserID: "user-1", InstanceGUID: "inst-1",
		EventTimestamp: eventTS, InstanceTimestamp: eventTS, UploadIDs: []string{"u0"}, Version: 1,
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	outcome := f.r.Reconcile(context.Background(), completedUpload("u1"))
	assert.Equal(t, ReconcileUpdated, outcome)

	assert.Len(t, f.repos.adherence.queries, 2)
	require.Len(t, f.repos.adherence.saved, 1)
	rec := f.repos.adherence.saved[0]
	assert.Equal(t, "rec-winner", rec.ID)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, []string{"u0", "u1"}, rec.UploadIDs)
	assert.Equal(t, 1, f.logs.FilterMessage("adherence record changed concurrently, retrying").Len())
}

func TestReconcile_SubMillisecondReplayMatchesStoredRecord(t *testing.T) {
	f := newReconcileFixture(t)
	f.repos.adherence.records = []*models.AdherenceRecord{{
		ID: "rec-1", AppID: "app", StudyID: "study-1", UserID: "user-1", InstanceGUID: "inst-1",
		EventTimestamp: eventTS.Add(123 * time.Millisecond), UploadIDs: []string{"u0"}, Version: 1,
	}}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	u := completedUpload("u1")
	u.Metadata, _ = json.Marshal(map[string]string{
		models.MetadataInstanceGUID:   "inst-1",
		models.MetadataEventTimestamp: "2026-02-28T09:00:00.123456789Z",
		models.MetadataStartedOn:      startedTS.Format(time.RFC3339),
	})

	assert.Equal(t, ReconcileUpdated, f.r.Reconcile(context.Background(), u))
	require.Len(t, f.repos.adherence.saved, 1)
	assert.Equal(t, "rec-1", f.repos.adherence.saved[0].ID)
}

func TestReconcile_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newReconcileFixture(t)
	f.repos.adherence.saveErr = common.ErrVersionConflict
	for i := 0; i < maxReconcileAttempts; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
	}

	assert.Equal(t, ReconcileFailed, f.r.Reconcile(context.Background(), completedUpload("u1")))
	assert.Len(t, f.repos.adherence.queries, maxReconcileAttempts)
	assert.Equal(t, maxReconcileAttempts-1, f.logs.FilterMessage("adherence record changed concurrently, retrying").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("adherence update failed").Len())
}
