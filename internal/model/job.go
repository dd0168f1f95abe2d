package model

import (
	"fmt"
	"time"
)

// AnalysisJob tracks a performance record through the analysis pipeline.
// Jobs are created by the dispatcher, mutated by the dispatch worker, the
// retry scheduler and the result ingestor, and never deleted by normal
// operation.
type AnalysisJob struct {
	ID             string     `json:"id"`
	SourceRecordID string     `json:"sourceRecordId"`
	OwnerID        string     `json:"ownerId"`
	Status         JobStatus  `json:"status"`
	Log            []LogEntry `json:"log"`
	IdempotencyKey string     `json:"idempotencyKey"`
	RetryCount     int        `json:"retryCount"`
	MaxRetries     int        `json:"maxRetries"`
	NextRetryAt    *time.Time `json:"nextRetryAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// LogEntry is one line of the append-only diagnostic trail on a job.
// Informational only, never authoritative state.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// InvalidTransitionError signals an attempt to move a job between two
// states the lifecycle does not connect. The job is left unchanged.
type InvalidTransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

// validTransitions lists every permitted status change except
// FAILED -> PENDING, which only Requeue may perform.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending:    {JobStatusProcessing: true, JobStatusFailed: true},
	JobStatusProcessing: {JobStatusCompleted: true, JobStatusFailed: true},
}

// TransitionTo applies a forward lifecycle transition and stamps the
// timestamps the target state owns: StartedAt on entering PROCESSING,
// CompletedAt on entering COMPLETED or FAILED. Invalid transitions return
// an InvalidTransitionError without mutating the job.
func (j *AnalysisJob) TransitionTo(next JobStatus, now time.Time) error {
	if !validTransitions[j.Status][next] {
		return &InvalidTransitionError{From: j.Status, To: next}
	}

	j.Status = next
	switch next {
	case JobStatusProcessing:
		t := now
		j.StartedAt = &t
	case JobStatusCompleted, JobStatusFailed:
		t := now
		j.CompletedAt = &t
	}
	return nil
}

// Requeue moves a FAILED job back to PENDING for another dispatch attempt.
// It increments the retry counter, clears the per-attempt timestamps and
// records the scheduled retry time. Only the retry scheduler calls this.
func (j *AnalysisJob) Requeue(now, nextRetry time.Time) error {
	if j.Status != JobStatusFailed || j.RetryCount >= j.MaxRetries {
		return &InvalidTransitionError{From: j.Status, To: JobStatusPending}
	}

	j.Status = JobStatusPending
	j.RetryCount++
	j.StartedAt = nil
	j.CompletedAt = nil
	t := nextRetry
	j.NextRetryAt = &t
	j.AppendLog(now, fmt.Sprintf("retry %d/%d scheduled for %s",
		j.RetryCount, j.MaxRetries, nextRetry.UTC().Format(time.RFC3339)))
	return nil
}

// AppendLog adds a timestamped note to the diagnostic trail.
func (j *AnalysisJob) AppendLog(now time.Time, message string) {
	j.Log = append(j.Log, LogEntry{At: now, Message: message})
}

// Terminal reports whether no further automatic transition can occur:
// COMPLETED, or FAILED with retries exhausted.
func (j *AnalysisJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted:
		return true
	case JobStatusFailed:
		return j.RetryCount >= j.MaxRetries
	}
	return false
}

// Active reports whether this job still occupies its source record's
// single active-job slot.
func (j *AnalysisJob) Active() bool {
	return !j.Terminal()
}

// CoarseStatus maps the job status to the coarse view owners see.
func (j *AnalysisJob) CoarseStatus() string {
	switch j.Status {
	case JobStatusPending:
		return "queued"
	case JobStatusProcessing:
		return "analyzing"
	case JobStatusCompleted:
		return "complete"
	case JobStatusFailed:
		return "failed"
	}
	return string(j.Status)
}
