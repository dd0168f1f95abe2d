package store

import (
	"context"
	"sync"

	"github.com/fieldmetrics/api/internal/model"
)

// In-memory store implementations. Used by tests and by local development
// when Redis is not configured; they satisfy the same contracts as the
// Redis stores, including the active-job and status indexes.

// MemoryJobStore implements JobStore in process memory.
type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[string]model.AnalysisJob
	active map[string]string // sourceRecordID -> jobID
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[string]model.AnalysisJob),
		active: make(map[string]string),
	}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *model.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	s.active[job.SourceRecordID] = job.ID
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneJob(&job)
	return &out, nil
}

func (s *MemoryJobStore) Save(ctx context.Context, job *model.AnalysisJob, prevStatus model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	if job.Terminal() {
		if s.active[job.SourceRecordID] == job.ID {
			delete(s.active, job.SourceRecordID)
		}
	} else {
		s.active[job.SourceRecordID] = job.ID
	}
	return nil
}

func (s *MemoryJobStore) GetActiveBySource(ctx context.Context, sourceRecordID string) (*model.AnalysisJob, error) {
	s.mu.RLock()
	id, ok := s.active[sourceRecordID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *MemoryJobStore) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*model.AnalysisJob
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status == status {
			out := cloneJob(&job)
			jobs = append(jobs, &out)
		}
	}
	return jobs, nil
}

func cloneJob(job *model.AnalysisJob) model.AnalysisJob {
	out := *job
	out.Log = append([]model.LogEntry(nil), job.Log...)
	return out
}

// MemoryRecordStore implements RecordStore in process memory.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]model.SourceRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]model.SourceRecord)}
}

func (s *MemoryRecordStore) Create(ctx context.Context, record *model.SourceRecord) error {
	return s.Save(ctx, record)
}

func (s *MemoryRecordStore) Get(ctx context.Context, id string) (*model.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := record
	return &out, nil
}

func (s *MemoryRecordStore) Save(ctx context.Context, record *model.SourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = *record
	return nil
}

// Delete removes a record. Test helper for lost-record scenarios.
func (s *MemoryRecordStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// MemoryResultStore implements ResultStore in process memory.
type MemoryResultStore struct {
	mu          sync.RWMutex
	reports     map[string]model.AnalysisReport
	reportByJob map[string]string
	metrics     map[string]model.MetricsRecord
	tempo       map[string][]model.TempoRecord
	events      map[string][]model.MatchEvent
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		reports:     make(map[string]model.AnalysisReport),
		reportByJob: make(map[string]string),
		metrics:     make(map[string]model.MetricsRecord),
		tempo:       make(map[string][]model.TempoRecord),
		events:      make(map[string][]model.MatchEvent),
	}
}

func (s *MemoryResultStore) SaveBundle(ctx context.Context, bundle *model.ResultBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[bundle.Report.ID] = *bundle.Report
	s.reportByJob[bundle.Report.JobID] = bundle.Report.ID
	s.metrics[bundle.Metrics.JobID] = *bundle.Metrics
	s.tempo[bundle.Report.JobID] = append(s.tempo[bundle.Report.JobID], bundle.Tempo...)
	s.events[bundle.Report.JobID] = append(s.events[bundle.Report.JobID], bundle.Events...)
	return nil
}

func (s *MemoryResultStore) GetReport(ctx context.Context, reportID string) (*model.AnalysisReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	out := report
	return &out, nil
}

func (s *MemoryResultStore) GetReportByJob(ctx context.Context, jobID string) (*model.AnalysisReport, error) {
	s.mu.RLock()
	id, ok := s.reportByJob[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetReport(ctx, id)
}

// TempoRows returns the persisted tempo rows for a job. Test helper.
func (s *MemoryResultStore) TempoRows(jobID string) []model.TempoRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.TempoRecord(nil), s.tempo[jobID]...)
}

// EventRows returns the persisted event rows for a job. Test helper.
func (s *MemoryResultStore) EventRows(jobID string) []model.MatchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MatchEvent(nil), s.events[jobID]...)
}
