package store

import (
	"context"
	"errors"

	"github.com/fieldmetrics/api/internal/model"
)

// ErrNotFound is returned when a keyed entity does not exist.
var ErrNotFound = errors.New("not found")

// JobStore is the durable record of job lifecycle state. Implementations
// keep two secondary indexes: the active job per source record (idempotent
// submission) and the job ids per status (the administrator's failed-job
// sweep).
type JobStore interface {
	// Create persists a new job and points the record's active-job slot
	// at it.
	Create(ctx context.Context, job *model.AnalysisJob) error
	Get(ctx context.Context, id string) (*model.AnalysisJob, error)
	// Save persists a mutated job. prevStatus is the status the job held
	// when it was loaded, so the status index can be maintained.
	Save(ctx context.Context, job *model.AnalysisJob, prevStatus model.JobStatus) error
	// GetActiveBySource returns the non-terminal job for a source record,
	// or ErrNotFound when none exists.
	GetActiveBySource(ctx context.Context, sourceRecordID string) (*model.AnalysisJob, error)
	ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.AnalysisJob, error)
}

// RecordStore persists uploaded source records.
type RecordStore interface {
	Create(ctx context.Context, record *model.SourceRecord) error
	Get(ctx context.Context, id string) (*model.SourceRecord, error)
	Save(ctx context.Context, record *model.SourceRecord) error
}

// ResultStore persists everything derived from one callback as a single
// unit, plus the report-by-job pointer the ingestor's idempotency check
// relies on.
type ResultStore interface {
	SaveBundle(ctx context.Context, bundle *model.ResultBundle) error
	GetReport(ctx context.Context, reportID string) (*model.AnalysisReport, error)
	GetReportByJob(ctx context.Context, jobID string) (*model.AnalysisReport, error)
}
