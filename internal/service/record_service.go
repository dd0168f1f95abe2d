package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

// UploadRecordInput is the validated form of an upload request.
type UploadRecordInput struct {
	VideoReference *string
	GPSReference   *string
	CapturedAt     time.Time
	Metadata       map[string]string
}

// RecordService owns source record intake. Upload persists the record and
// immediately submits it for analysis through the dispatcher.
type RecordService struct {
	records    store.RecordStore
	dispatcher *DispatchService
}

func NewRecordService(records store.RecordStore, dispatcher *DispatchService) *RecordService {
	return &RecordService{records: records, dispatcher: dispatcher}
}

// Upload stores a new source record for an owner and submits it for
// analysis. The returned job is PENDING; the hand-off happens async.
func (s *RecordService) Upload(ctx context.Context, ownerID string, input *UploadRecordInput) (*model.SourceRecord, *model.AnalysisJob, error) {
	now := time.Now()
	record := &model.SourceRecord{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		VideoReference: input.VideoReference,
		GPSReference:   input.GPSReference,
		CapturedAt:     input.CapturedAt,
		Metadata:       input.Metadata,
		Status:         model.RecordStatusUploaded,
		CreatedAt:      now,
	}
	if record.CapturedAt.IsZero() {
		record.CapturedAt = now
	}
	if !record.HasSource() {
		return nil, nil, &ValidationError{Message: "at least one of videoReference or gpsReference is required"}
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, nil, err
	}

	job, err := s.dispatcher.Submit(ctx, record)
	if err != nil {
		return nil, nil, err
	}
	return record, job, nil
}

// Get returns a record, scoped to its owner unless admin is set.
func (s *RecordService) Get(ctx context.Context, recordID, requesterID string, admin bool) (*model.SourceRecord, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if !admin && record.OwnerID != requesterID {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// Resubmit puts an existing record back through the dispatcher. Used when
// an owner re-requests analysis after a terminal failure; idempotent while
// an active job exists.
func (s *RecordService) Resubmit(ctx context.Context, recordID, requesterID string, admin bool) (*model.AnalysisJob, error) {
	record, err := s.Get(ctx, recordID, requesterID, admin)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Submit(ctx, record)
}
