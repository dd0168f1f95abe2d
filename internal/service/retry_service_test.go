package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmetrics/api/internal/model"
)

type retryFixture struct {
	*dispatchFixture
	svc *RetryService
}

func newRetryFixture(t *testing.T) *retryFixture {
	t.Helper()
	df := newDispatchFixture(t)
	return &retryFixture{
		dispatchFixture: df,
		svc: NewRetryService(
			df.jobs, df.svc, NewJobLocks(), nil,
			time.Second, 5*time.Minute,
		),
	}
}

// failedJob submits a record and drives its job into FAILED via a hand-off
// error.
func (f *retryFixture) failedJob(t *testing.T) *model.AnalysisJob {
	t.Helper()
	record := f.addRecord(t, "rec-1")
	job, err := f.dispatchFixture.svc.Submit(context.Background(), record)
	require.NoError(t, err)

	f.model.err = errBoom
	require.NoError(t, f.dispatchFixture.svc.HandOff(context.Background(), job.ID))
	f.model.err = nil

	failed, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusFailed, failed.Status)
	return failed
}

func TestBackoffDoublesFromBase(t *testing.T) {
	f := newRetryFixture(t)

	assert.Equal(t, time.Second, f.svc.Backoff(0))
	assert.Equal(t, 2*time.Second, f.svc.Backoff(1))
	assert.Equal(t, 4*time.Second, f.svc.Backoff(2))
	assert.Equal(t, 8*time.Second, f.svc.Backoff(3))
}

func TestBackoffIsCapped(t *testing.T) {
	f := newRetryFixture(t)

	assert.Equal(t, 5*time.Minute, f.svc.Backoff(20))
	assert.Equal(t, time.Second, f.svc.Backoff(-1))
}

func TestRetryRequeuesFailedJob(t *testing.T) {
	f := newRetryFixture(t)
	failed := f.failedJob(t)
	enqueuedBefore := f.queue.count()

	job, err := f.svc.Retry(context.Background(), failed.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	require.NotNil(t, job.NextRetryAt)

	require.Equal(t, enqueuedBefore+1, f.queue.count())
	assert.Equal(t, TaskTypeDispatch, f.queue.last().task.Type())

	delay, ok := f.queue.processIn()
	require.True(t, ok, "retry dispatch must be delayed")
	assert.Equal(t, time.Second, delay, "first retry uses the base delay")
}

func TestRetryBackoffGrowsWithRetryCount(t *testing.T) {
	f := newRetryFixture(t)
	failed := f.failedJob(t)

	// First retry consumed, fail the attempt again.
	_, err := f.svc.Retry(context.Background(), failed.ID)
	require.NoError(t, err)
	f.model.err = errBoom
	require.NoError(t, f.dispatchFixture.svc.HandOff(context.Background(), failed.ID))
	f.model.err = nil

	_, err = f.svc.Retry(context.Background(), failed.ID)
	require.NoError(t, err)

	delay, ok := f.queue.processIn()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestRetryRejectsNonFailedJob(t *testing.T) {
	f := newRetryFixture(t)
	record := f.addRecord(t, "rec-1")
	job, err := f.dispatchFixture.svc.Submit(context.Background(), record)
	require.NoError(t, err)

	_, err = f.svc.Retry(context.Background(), job.ID)
	var rerr *RetryNotAllowedError
	require.ErrorAs(t, err, &rerr)

	// The job must be untouched.
	unchanged, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, unchanged.Status)
	assert.Equal(t, 0, unchanged.RetryCount)
}

func TestRetryRejectsExhaustedBudget(t *testing.T) {
	f := newRetryFixture(t)
	failed := f.failedJob(t)

	job, err := f.jobs.Get(context.Background(), failed.ID)
	require.NoError(t, err)
	job.RetryCount = job.MaxRetries
	require.NoError(t, f.jobs.Save(context.Background(), job, job.Status))

	_, err = f.svc.Retry(context.Background(), failed.ID)
	var rerr *RetryNotAllowedError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Reason, "exhausted")
}

func TestRetryUnknownJob(t *testing.T) {
	f := newRetryFixture(t)
	_, err := f.svc.Retry(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRetryEnqueueFailureRollsBack(t *testing.T) {
	f := newRetryFixture(t)
	failed := f.failedJob(t)
	f.queue.err = errBoom

	_, err := f.svc.Retry(context.Background(), failed.ID)
	require.Error(t, err)

	job, err := f.jobs.Get(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestListFailed(t *testing.T) {
	f := newRetryFixture(t)
	failed := f.failedJob(t)

	jobs, err := f.svc.ListFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, failed.ID, jobs[0].ID)
}
