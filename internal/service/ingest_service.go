package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fieldmetrics/api/internal/client"
	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

// IngestService consumes model-server callbacks: it validates the result
// against job state, persists the derived report bundle atomically and
// completes the job exactly once per callback delivery.
type IngestService struct {
	jobs     store.JobStore
	records  store.RecordStore
	results  store.ResultStore
	renderer client.ReportRenderer
	notifier Notifier
	locks    *JobLocks
	hub      Broadcaster
}

func NewIngestService(
	jobs store.JobStore,
	records store.RecordStore,
	results store.ResultStore,
	renderer client.ReportRenderer,
	notifier Notifier,
	locks *JobLocks,
	hub Broadcaster,
) *IngestService {
	return &IngestService{
		jobs:     jobs,
		records:  records,
		results:  results,
		renderer: renderer,
		notifier: notifier,
		locks:    locks,
		hub:      hub,
	}
}

// Ingest applies a callback result to its job. Redeliveries of an already
// ingested callback return the existing report instead of creating a
// second one.
func (s *IngestService) Ingest(ctx context.Context, result *model.CallbackResult) (*model.AnalysisReport, error) {
	unlock := s.locks.Acquire(result.JobID)
	defer unlock()

	job, err := s.jobs.Get(ctx, result.JobID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrUnknownJob
		}
		return nil, err
	}

	// Redelivery after a completed ingestion: the pointer exists, hand
	// back the same report.
	if existing, err := s.results.GetReportByJob(ctx, job.ID); err == nil {
		return existing, nil
	} else if err != store.ErrNotFound {
		return nil, err
	}

	if job.Terminal() || job.Status == model.JobStatusFailed {
		return nil, ErrJobTerminal
	}

	now := time.Now()
	if job.Status == model.JobStatusPending {
		// Callback won the race against the dispatch worker; the model
		// server clearly received the job, so advance it first.
		prev := job.Status
		if err := job.TransitionTo(model.JobStatusProcessing, now); err != nil {
			return nil, err
		}
		job.AppendLog(now, "callback received before hand-off acknowledgement")
		if err := s.jobs.Save(ctx, job, prev); err != nil {
			return nil, s.failIngestion(ctx, job.ID, &PersistenceError{Step: "advance job to processing", Err: err})
		}
	}

	bundle := s.buildBundle(job, result, now)

	if s.renderer != nil && s.renderer.IsConfigured() {
		rendered, err := s.renderer.Render(ctx, &client.RenderReportRequest{
			ReportID:     bundle.Report.ID,
			OwnerID:      job.OwnerID,
			OverallScore: result.Scoring.OverallScore,
			Breakdown:    result.Breakdown,
			Insights:     result.Insights,
			OutputKey:    fmt.Sprintf("reports/%s/%s.pdf", job.OwnerID, bundle.Report.ID),
		})
		if err != nil {
			return nil, s.failIngestion(ctx, job.ID, &PersistenceError{Step: "render report artifact", Err: err})
		}
		bundle.Report.ArtifactURL = rendered.ArtifactURL
	}

	if err := s.results.SaveBundle(ctx, bundle); err != nil {
		return nil, s.failIngestion(ctx, job.ID, &PersistenceError{Step: "persist result bundle", Err: err})
	}

	prev := job.Status
	if err := job.TransitionTo(model.JobStatusCompleted, now); err != nil {
		return nil, err
	}
	job.AppendLog(now, fmt.Sprintf("analysis complete, overall score %.1f", result.Scoring.OverallScore))
	if err := s.jobs.Save(ctx, job, prev); err != nil {
		return nil, s.failIngestion(ctx, job.ID, &PersistenceError{Step: "complete job", Err: err})
	}

	if record, err := s.records.Get(ctx, job.SourceRecordID); err == nil {
		record.Status = model.RecordStatusAnalyzed
		if err := s.records.Save(ctx, record); err != nil {
			log.Printf("Failed to update record %s status: %v", record.ID, err)
		}
	}

	if s.notifier != nil {
		summary := fmt.Sprintf("Your analysis is ready: overall score %.0f", result.Scoring.OverallScore)
		if err := s.notifier.Notify(ctx, job.OwnerID, summary); err != nil {
			log.Printf("Failed to queue notification for owner %s: %v", job.OwnerID, err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastComplete(job.ID, bundle.Report.ID, bundle.Report.OverallScore, bundle.Report.ArtifactURL)
	}

	return bundle.Report, nil
}

// FailFromCallback records a model-reported processing failure for a job
// that is still in flight.
func (s *IngestService) FailFromCallback(ctx context.Context, jobID, detail string) (*model.AnalysisJob, error) {
	unlock := s.locks.Acquire(jobID)
	defer unlock()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrUnknownJob
		}
		return nil, err
	}
	if job.Status == model.JobStatusFailed || job.Terminal() {
		return nil, ErrJobTerminal
	}

	now := time.Now()
	prev := job.Status
	if err := job.TransitionTo(model.JobStatusFailed, now); err != nil {
		return nil, err
	}
	job.AppendLog(now, "model server reported failure: "+detail)

	if err := s.jobs.Save(ctx, job, prev); err != nil {
		return nil, &PersistenceError{Step: "fail job", Err: err}
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
		s.hub.BroadcastError(job.ID, "ANALYSIS_FAILED", detail)
	}
	return job, nil
}

// failIngestion marks a job terminally FAILED after an ingestion step
// failed, so the job never sits in PROCESSING with no owner. The caller
// already holds the job lock. Returns the error it was handed so call
// sites can fail and return in one step.
func (s *IngestService) failIngestion(ctx context.Context, jobID string, perr *PersistenceError) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		log.Printf("Failed to load job %s after ingestion error: %v", jobID, err)
		return perr
	}
	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
		return perr
	}

	now := time.Now()
	prev := job.Status
	if err := job.TransitionTo(model.JobStatusFailed, now); err != nil {
		log.Printf("Job %s: %v", jobID, err)
		return perr
	}
	job.AppendLog(now, perr.Error())
	// Partial persistence needs an administrator, not another attempt.
	job.RetryCount = job.MaxRetries

	if err := s.jobs.Save(ctx, job, prev); err != nil {
		log.Printf("Failed to mark job %s failed: %v", jobID, err)
		return perr
	}

	if record, err := s.records.Get(ctx, job.SourceRecordID); err == nil {
		record.Status = model.RecordStatusFailed
		if err := s.records.Save(ctx, record); err != nil {
			log.Printf("Failed to update record %s status: %v", record.ID, err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastError(job.ID, "INGEST_FAILED", perr.Error())
	}
	return perr
}

// buildBundle derives the persistent report, metrics, tempo and event
// rows from a callback result.
func (s *IngestService) buildBundle(job *model.AnalysisJob, result *model.CallbackResult, now time.Time) *model.ResultBundle {
	reportID := uuid.New().String()

	report := &model.AnalysisReport{
		ID:             reportID,
		JobID:          job.ID,
		SourceRecordID: job.SourceRecordID,
		OwnerID:        job.OwnerID,
		OverallScore:   result.Scoring.OverallScore,
		Breakdown:      result.Breakdown,
		CreatedAt:      now,
	}

	metrics := &model.MetricsRecord{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		RecordID:  job.SourceRecordID,
		OwnerID:   job.OwnerID,
		Scoring:   result.Scoring,
		Breakdown: result.Breakdown,
		Benchmark: result.Benchmark,
		Insights:  result.Insights,
		CreatedAt: now,
	}

	tempo := make([]model.TempoRecord, 0, len(result.Tempo))
	for _, entry := range result.Tempo {
		tempo = append(tempo, model.TempoRecord{
			ID:         uuid.New().String(),
			JobID:      job.ID,
			TempoEntry: entry,
		})
	}

	events := make([]model.MatchEvent, 0, len(result.Events))
	for _, entry := range result.Events {
		events = append(events, model.MatchEvent{
			ID:         uuid.New().String(),
			JobID:      job.ID,
			EventEntry: entry,
		})
	}

	return &model.ResultBundle{
		Report:  report,
		Metrics: metrics,
		Tempo:   tempo,
		Events:  events,
	}
}
