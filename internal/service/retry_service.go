package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

// RetryService re-queues FAILED jobs with exponential backoff. Retries are
// triggered explicitly (admin endpoint) so a crashed process never loses a
// timer: the delay lives in the durable queue, not in memory.
type RetryService struct {
	jobs       store.JobStore
	dispatcher *DispatchService
	locks      *JobLocks
	hub        Broadcaster
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewRetryService(
	jobs store.JobStore,
	dispatcher *DispatchService,
	locks *JobLocks,
	hub Broadcaster,
	baseDelay, maxDelay time.Duration,
) *RetryService {
	return &RetryService{
		jobs:       jobs,
		dispatcher: dispatcher,
		locks:      locks,
		hub:        hub,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// Backoff returns the delay before the next attempt given the number of
// retries already consumed: baseDelay doubled per retry, capped at
// maxDelay.
func (s *RetryService) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := s.baseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}

// Retry moves a FAILED job back to PENDING and queues a delayed hand-off.
// Rejected for jobs that are not FAILED or that have exhausted their
// retry budget.
func (s *RetryService) Retry(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	unlock := s.locks.Acquire(jobID)
	defer unlock()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if job.Status != model.JobStatusFailed {
		return nil, &RetryNotAllowedError{Reason: fmt.Sprintf("job is %s, only FAILED jobs can be retried", job.Status)}
	}
	if job.RetryCount >= job.MaxRetries {
		return nil, &RetryNotAllowedError{Reason: fmt.Sprintf("retry budget exhausted (%d/%d)", job.RetryCount, job.MaxRetries)}
	}

	delay := s.Backoff(job.RetryCount)
	now := time.Now()
	prev := job.Status
	if err := job.Requeue(now, now.Add(delay)); err != nil {
		return nil, err
	}

	if err := s.jobs.Save(ctx, job, prev); err != nil {
		return nil, &PersistenceError{Step: "requeue job", Err: err}
	}

	if err := s.dispatcher.enqueueDispatch(job.ID, delay); err != nil {
		// The job is PENDING but nothing will ever pick it up; roll it
		// back to FAILED so the retry budget stays honest.
		rollbackNow := time.Now()
		rbPrev := job.Status
		if rbErr := job.TransitionTo(model.JobStatusFailed, rollbackNow); rbErr == nil {
			job.AppendLog(rollbackNow, fmt.Sprintf("failed to queue retry: %v", err))
			if saveErr := s.jobs.Save(ctx, job, rbPrev); saveErr != nil {
				log.Printf("Failed to roll back job %s after enqueue error: %v", job.ID, saveErr)
			}
		}
		return nil, &PersistenceError{Step: "enqueue retry", Err: err}
	}

	if s.hub != nil {
		s.hub.BroadcastStatus(job.ID, job.Status, job.CoarseStatus(), fmt.Sprintf("retry %d/%d queued", job.RetryCount, job.MaxRetries))
	}
	return job, nil
}

// ListFailed returns all jobs currently in FAILED state, for the admin
// console.
func (s *RetryService) ListFailed(ctx context.Context) ([]*model.AnalysisJob, error) {
	return s.jobs.ListByStatus(ctx, model.JobStatusFailed)
}
