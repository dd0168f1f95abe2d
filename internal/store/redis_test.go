package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

// setupRedis spins up a Redis container and returns a connected client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func newTestJob(recordID string) *model.AnalysisJob {
	return &model.AnalysisJob{
		ID:             uuid.New().String(),
		SourceRecordID: recordID,
		OwnerID:        "owner-1",
		Status:         model.JobStatusPending,
		MaxRetries:     3,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestRedisJobStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	jobs := store.NewRedisJobStore(client)
	ctx := context.Background()

	job := newTestJob("rec-1")
	job.AppendLog(time.Now().UTC(), "job queued for analysis")
	require.NoError(t, jobs.Create(ctx, job))

	loaded, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, model.JobStatusPending, loaded.Status)
	require.Len(t, loaded.Log, 1)

	_, err = jobs.Get(ctx, "no-such-job")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisJobStoreStatusIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	jobs := store.NewRedisJobStore(client)
	ctx := context.Background()

	job := newTestJob("rec-1")
	require.NoError(t, jobs.Create(ctx, job))

	pending, err := jobs.ListByStatus(ctx, model.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	prev := job.Status
	require.NoError(t, job.TransitionTo(model.JobStatusFailed, time.Now().UTC()))
	require.NoError(t, jobs.Save(ctx, job, prev))

	pending, err = jobs.ListByStatus(ctx, model.JobStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := jobs.ListByStatus(ctx, model.JobStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)
}

func TestRedisJobStoreActivePointer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	jobs := store.NewRedisJobStore(client)
	ctx := context.Background()

	job := newTestJob("rec-1")
	require.NoError(t, jobs.Create(ctx, job))

	active, err := jobs.GetActiveBySource(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, active.ID)

	// Completing the job frees the record's active slot.
	prev := job.Status
	require.NoError(t, job.TransitionTo(model.JobStatusProcessing, time.Now().UTC()))
	require.NoError(t, jobs.Save(ctx, job, prev))
	prev = job.Status
	require.NoError(t, job.TransitionTo(model.JobStatusCompleted, time.Now().UTC()))
	require.NoError(t, jobs.Save(ctx, job, prev))

	_, err = jobs.GetActiveBySource(ctx, "rec-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisJobStoreRetryableFailureStaysActive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	jobs := store.NewRedisJobStore(client)
	ctx := context.Background()

	job := newTestJob("rec-1")
	require.NoError(t, jobs.Create(ctx, job))

	prev := job.Status
	require.NoError(t, job.TransitionTo(model.JobStatusFailed, time.Now().UTC()))
	require.NoError(t, jobs.Save(ctx, job, prev))

	active, err := jobs.GetActiveBySource(ctx, "rec-1")
	require.NoError(t, err, "a failed job with budget left still occupies the slot")
	assert.Equal(t, job.ID, active.ID)
}

func TestRedisRecordStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	records := store.NewRedisRecordStore(client)
	ctx := context.Background()

	video := "media/owner-1/video/match.mp4"
	record := &model.SourceRecord{
		ID:             uuid.New().String(),
		OwnerID:        "owner-1",
		VideoReference: &video,
		Metadata:       map[string]string{"opponent": "FC Example"},
		Status:         model.RecordStatusUploaded,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, records.Create(ctx, record))

	loaded, err := records.Get(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.VideoReference)
	assert.Equal(t, video, *loaded.VideoReference)
	assert.Equal(t, "FC Example", loaded.Metadata["opponent"])

	loaded.Status = model.RecordStatusQueued
	require.NoError(t, records.Save(ctx, loaded))

	again, err := records.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusQueued, again.Status)
}

func TestRedisResultStoreBundle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	results := store.NewRedisResultStore(client)
	ctx := context.Background()

	jobID := uuid.New().String()
	bundle := &model.ResultBundle{
		Report: &model.AnalysisReport{
			ID:             uuid.New().String(),
			JobID:          jobID,
			SourceRecordID: "rec-1",
			OwnerID:        "owner-1",
			OverallScore:   85,
			CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
		},
		Metrics: &model.MetricsRecord{
			ID:      uuid.New().String(),
			JobID:   jobID,
			OwnerID: "owner-1",
			Scoring: model.ScoringMetrics{OverallScore: 85},
		},
		Tempo: []model.TempoRecord{
			{ID: uuid.New().String(), JobID: jobID, TempoEntry: model.TempoEntry{Minute: 1, DistanceMeters: 110}},
		},
		Events: []model.MatchEvent{
			{ID: uuid.New().String(), JobID: jobID, EventEntry: model.EventEntry{Type: model.EventShot, TimestampMS: 64000, Success: true}},
		},
	}
	require.NoError(t, results.SaveBundle(ctx, bundle))

	report, err := results.GetReport(ctx, bundle.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, 85.0, report.OverallScore)

	byJob, err := results.GetReportByJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, bundle.Report.ID, byJob.ID)

	_, err = results.GetReportByJob(ctx, "no-such-job")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
