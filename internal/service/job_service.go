package service

import (
	"context"

	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

// JobService is the read side of the pipeline: owner-facing status lookups
// and report retrieval.
type JobService struct {
	jobs    store.JobStore
	results store.ResultStore
}

func NewJobService(jobs store.JobStore, results store.ResultStore) *JobService {
	return &JobService{jobs: jobs, results: results}
}

// Get returns a job, scoped to its owner unless admin is set.
func (s *JobService) Get(ctx context.Context, jobID, requesterID string, admin bool) (*model.AnalysisJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !admin && job.OwnerID != requesterID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// GetReport returns the report produced by a completed job, scoped to its
// owner unless admin is set.
func (s *JobService) GetReport(ctx context.Context, jobID, requesterID string, admin bool) (*model.AnalysisReport, error) {
	job, err := s.Get(ctx, jobID, requesterID, admin)
	if err != nil {
		return nil, err
	}
	report, err := s.results.GetReportByJob(ctx, job.ID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return report, nil
}

// ListByStatus returns all jobs in the given status, newest first left to
// the store's ordering. Admin only.
func (s *JobService) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.AnalysisJob, error) {
	return s.jobs.ListByStatus(ctx, status)
}
