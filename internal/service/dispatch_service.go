package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fieldmetrics/api/internal/client"
	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/signature"
	"github.com/fieldmetrics/api/internal/store"
)

// DispatchService turns accepted uploads into analysis jobs and performs
// the signed hand-off to the model server. Submit never blocks on the
// hand-off: the outbound call rides a durable queue task so a restart
// between submission and hand-off cannot drop the job.
type DispatchService struct {
	jobs           store.JobStore
	records        store.RecordStore
	queue          Enqueuer
	modelClient    client.ModelProcessor
	signer         *signature.Signer
	locks          *JobLocks
	hub            Broadcaster
	maxRetries     int
	handoffTimeout time.Duration
}

func NewDispatchService(
	jobs store.JobStore,
	records store.RecordStore,
	queue Enqueuer,
	modelClient client.ModelProcessor,
	signer *signature.Signer,
	locks *JobLocks,
	hub Broadcaster,
	maxRetries int,
	handoffTimeout time.Duration,
) *DispatchService {
	return &DispatchService{
		jobs:           jobs,
		records:        records,
		queue:          queue,
		modelClient:    modelClient,
		signer:         signer,
		locks:          locks,
		hub:            hub,
		maxRetries:     maxRetries,
		handoffTimeout: handoffTimeout,
	}
}

// Submit creates (or reuses) the analysis job for a source record and
// queues the hand-off. Returns once the job is persisted; the outbound
// call happens in the dispatch worker.
func (s *DispatchService) Submit(ctx context.Context, record *model.SourceRecord) (*model.AnalysisJob, error) {
	if !record.HasSource() {
		return nil, &ValidationError{Message: "source record has neither video nor GPS reference"}
	}

	// The active-job check and job creation must be atomic per record or
	// two concurrent submits both create a job.
	unlock := s.locks.Acquire("record:" + record.ID)
	defer unlock()

	existing, err := s.jobs.GetActiveBySource(ctx, record.ID)
	if err == nil {
		return existing, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("failed to check active job: %w", err)
	}

	now := time.Now()
	job := &model.AnalysisJob{
		ID:             uuid.New().String(),
		SourceRecordID: record.ID,
		OwnerID:        record.OwnerID,
		Status:         model.JobStatusPending,
		IdempotencyKey: idempotencyKey(record.ID, now),
		MaxRetries:     s.maxRetries,
		CreatedAt:      now,
	}
	job.AppendLog(now, "job queued for analysis")

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	record.Status = model.RecordStatusQueued
	if err := s.records.Save(ctx, record); err != nil {
		log.Printf("Failed to update record %s status: %v", record.ID, err)
	}

	if err := s.enqueueDispatch(job.ID, 0); err != nil {
		// The hand-off was never queued; leave the job FAILED and
		// retryable rather than PENDING forever.
		s.failJob(ctx, job.ID, fmt.Sprintf("failed to queue hand-off: %v", err), false)
		return s.jobs.Get(ctx, job.ID)
	}

	return job, nil
}

// HandOff performs steps 3–7 of a dispatch attempt for a PENDING job: it
// builds the signed payload, calls the model server and records the
// outcome as a state transition. Hand-off failures are converted into job
// state, never returned, so the queue does not re-run the task — retries
// are the retry scheduler's exclusive responsibility.
func (s *DispatchService) HandOff(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			log.Printf("Dispatch task for unknown job %s, dropping", jobID)
			return nil
		}
		return err
	}
	if job.Status != model.JobStatusPending {
		// Stale task: the job moved on (e.g. an early callback).
		log.Printf("Job %s is %s, skipping hand-off", jobID, job.Status)
		return nil
	}

	record, err := s.records.Get(ctx, job.SourceRecordID)
	if err != nil {
		if err == store.ErrNotFound {
			s.failJob(ctx, jobID, "source record missing", true)
			return nil
		}
		return err
	}

	payload := &client.ProcessRequest{
		JobID:          job.ID,
		SourceRecordID: record.ID,
		OwnerID:        record.OwnerID,
		VideoReference: record.VideoReference,
		GPSReference:   record.GPSReference,
		Metadata:       record.Metadata,
		Source:         "backend",
	}

	timestamp := time.Now().UnixMilli()
	sig, err := s.signer.Sign(payload, timestamp)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("failed to sign hand-off payload: %v", err), false)
		return nil
	}

	if s.modelClient == nil || !s.modelClient.IsConfigured() {
		// Development fallback: pretend the model server acknowledged.
		s.markProcessing(ctx, jobID, "hand-off acknowledged (mock)")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.handoffTimeout)
	defer cancel()

	if err := s.modelClient.Process(callCtx, payload, sig, timestamp); err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("hand-off failed: %v", err), false)
		return nil
	}

	s.markProcessing(ctx, jobID, "hand-off acknowledged by model server")
	return nil
}

// markProcessing transitions a job into PROCESSING under its lock.
func (s *DispatchService) markProcessing(ctx context.Context, jobID, note string) {
	unlock := s.locks.Acquire(jobID)
	defer unlock()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		log.Printf("Failed to load job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	prev := job.Status
	if err := job.TransitionTo(model.JobStatusProcessing, now); err != nil {
		log.Printf("Job %s: %v", jobID, err)
		return
	}
	job.AppendLog(now, note)

	if err := s.jobs.Save(ctx, job, prev); err != nil {
		log.Printf("Failed to save job %s: %v", jobID, err)
		return
	}
	if s.hub != nil {
		s.hub.BroadcastStatus(job.ID, job.Status, job.CoarseStatus(), note)
	}
}

// failJob transitions a job into FAILED under its lock. terminal forces
// retries to be treated as exhausted (source record gone, nothing to
// re-dispatch).
func (s *DispatchService) failJob(ctx context.Context, jobID, detail string, terminal bool) {
	unlock := s.locks.Acquire(jobID)
	defer unlock()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		log.Printf("Failed to load job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	prev := job.Status
	if err := job.TransitionTo(model.JobStatusFailed, now); err != nil {
		log.Printf("Job %s: %v", jobID, err)
		return
	}
	job.AppendLog(now, detail)
	if terminal {
		job.RetryCount = job.MaxRetries
	}

	if err := s.jobs.Save(ctx, job, prev); err != nil {
		log.Printf("Failed to save job %s: %v", jobID, err)
		return
	}

	if job.Terminal() {
		if record, err := s.records.Get(ctx, job.SourceRecordID); err == nil {
			record.Status = model.RecordStatusFailed
			if err := s.records.Save(ctx, record); err != nil {
				log.Printf("Failed to update record %s status: %v", record.ID, err)
			}
		}
	}

	if s.hub != nil {
		s.hub.BroadcastError(job.ID, "DISPATCH_FAILED", detail)
	}
}

// enqueueDispatch queues the durable hand-off task, optionally delayed.
func (s *DispatchService) enqueueDispatch(jobID string, delay time.Duration) error {
	task, err := NewDispatchTask(jobID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue("dispatch"),
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	_, err = s.queue.Enqueue(task, opts...)
	return err
}

// idempotencyKey derives a stable token from the record id and creation
// time so a duplicated submission attempt cannot yield two queue entries.
func idempotencyKey(recordID string, createdAt time.Time) string {
	seed := recordID + "@" + createdAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
