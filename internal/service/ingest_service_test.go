package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

type ingestFixture struct {
	jobs     *store.MemoryJobStore
	records  *store.MemoryRecordStore
	results  *store.MemoryResultStore
	renderer *fakeRenderer
	notifier *fakeNotifier
	svc      *IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		jobs:     store.NewMemoryJobStore(),
		records:  store.NewMemoryRecordStore(),
		results:  store.NewMemoryResultStore(),
		renderer: &fakeRenderer{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewIngestService(
		f.jobs, f.records, f.results, f.renderer, f.notifier, NewJobLocks(), nil,
	)
	return f
}

// seedJob stores a record and a job in the given status.
func (f *ingestFixture) seedJob(t *testing.T, status model.JobStatus) *model.AnalysisJob {
	t.Helper()
	ctx := context.Background()

	record := &model.SourceRecord{
		ID:             "rec-1",
		OwnerID:        "owner-1",
		VideoReference: strptr("media/owner-1/video/match.mp4"),
		Status:         model.RecordStatusQueued,
	}
	require.NoError(t, f.records.Create(ctx, record))

	job := &model.AnalysisJob{
		ID:             "job-1",
		SourceRecordID: record.ID,
		OwnerID:        record.OwnerID,
		Status:         model.JobStatusPending,
		MaxRetries:     3,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, f.jobs.Create(ctx, job))

	if status != model.JobStatusPending {
		prev := job.Status
		switch status {
		case model.JobStatusProcessing:
			require.NoError(t, job.TransitionTo(model.JobStatusProcessing, time.Now()))
		case model.JobStatusCompleted:
			require.NoError(t, job.TransitionTo(model.JobStatusProcessing, time.Now()))
			require.NoError(t, job.TransitionTo(model.JobStatusCompleted, time.Now()))
		case model.JobStatusFailed:
			require.NoError(t, job.TransitionTo(model.JobStatusFailed, time.Now()))
		}
		require.NoError(t, f.jobs.Save(ctx, job, prev))
	}
	return job
}

func TestIngestCompletesJob(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusProcessing)
	ctx := context.Background()

	report, err := f.svc.Ingest(ctx, sampleResult(job.ID))
	require.NoError(t, err)

	require.NotNil(t, report)
	assert.Equal(t, job.ID, report.JobID)
	assert.Equal(t, "owner-1", report.OwnerID)
	assert.Equal(t, 85.0, report.OverallScore)

	updated, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	record, err := f.records.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusAnalyzed, record.Status)

	assert.Len(t, f.results.TempoRows(job.ID), 2)
	assert.Len(t, f.results.EventRows(job.ID), 1)

	require.Len(t, f.notifier.summaries, 1)
	assert.Contains(t, f.notifier.summaries[0], "85")
}

func TestIngestRedeliveryReturnsSameReport(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusProcessing)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, sampleResult(job.ID))
	require.NoError(t, err)

	second, err := f.svc.Ingest(ctx, sampleResult(job.ID))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.notifier.summaries, 1, "redelivery must not notify twice")
	assert.Len(t, f.results.TempoRows(job.ID), 2, "redelivery must not duplicate rows")
}

func TestIngestUnknownJob(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.svc.Ingest(context.Background(), sampleResult("no-such-job"))
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestIngestRejectsFailedJob(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusFailed)

	_, err := f.svc.Ingest(context.Background(), sampleResult(job.ID))
	assert.ErrorIs(t, err, ErrJobTerminal)

	unchanged, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, unchanged.Status)
}

func TestIngestPendingJobStillCompletes(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusPending)
	ctx := context.Background()

	report, err := f.svc.Ingest(ctx, sampleResult(job.ID))
	require.NoError(t, err)
	require.NotNil(t, report)

	updated, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, updated.Status)
	require.NotNil(t, updated.StartedAt, "racing callback still stamps the processing start")
}

func TestIngestRendersArtifactWhenConfigured(t *testing.T) {
	f := newIngestFixture(t)
	f.renderer.configured = true
	f.renderer.url = "https://cdn.fieldmetrics.app/reports/r-1.pdf"
	job := f.seedJob(t, model.JobStatusProcessing)

	report, err := f.svc.Ingest(context.Background(), sampleResult(job.ID))
	require.NoError(t, err)
	assert.Equal(t, f.renderer.url, report.ArtifactURL)
}

func TestIngestRendererFailureFailsJob(t *testing.T) {
	f := newIngestFixture(t)
	f.renderer.configured = true
	f.renderer.err = errBoom
	job := f.seedJob(t, model.JobStatusProcessing)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, sampleResult(job.ID))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "render report artifact", perr.Step)

	updated, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, updated.Status)
	assert.True(t, updated.Terminal())

	_, err = f.results.GetReportByJob(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "no report may reference a missing artifact")
	assert.Empty(t, f.notifier.summaries)
}

func TestIngestPersistFailureMarksJobFailed(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusProcessing)
	ctx := context.Background()

	svc := NewIngestService(
		f.jobs, f.records, &failingResultStore{f.results}, f.renderer, f.notifier, NewJobLocks(), nil,
	)

	_, err := svc.Ingest(ctx, sampleResult(job.ID))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "persist result bundle", perr.Step)

	updated, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, updated.Status)
	assert.True(t, updated.Terminal(), "partial persistence is an administrator problem, not a retry")
	assert.Contains(t, updated.Log[len(updated.Log)-1].Message, "persist result bundle")

	record, err := f.records.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusFailed, record.Status)
	assert.Empty(t, f.notifier.summaries)
}

func TestFailFromCallback(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusProcessing)
	ctx := context.Background()

	failed, err := f.svc.FailFromCallback(ctx, job.ID, "tracking lost after minute 60")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Log[len(failed.Log)-1].Message, "tracking lost")

	record, err := f.records.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusQueued, record.Status, "retryable failure keeps the record queued")
}

func TestFailFromCallbackRejectsTerminalJob(t *testing.T) {
	f := newIngestFixture(t)
	job := f.seedJob(t, model.JobStatusCompleted)

	_, err := f.svc.FailFromCallback(context.Background(), job.ID, "late failure")
	assert.ErrorIs(t, err, ErrJobTerminal)
}
