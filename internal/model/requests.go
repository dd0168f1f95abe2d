package model

import "time"

// UploadRecordRequest creates a source record. At least one of the two
// references must be set.
type UploadRecordRequest struct {
	VideoReference *string           `json:"videoReference,omitempty" validate:"omitempty,min=1"`
	GPSReference   *string           `json:"gpsReference,omitempty" validate:"omitempty,min=1"`
	CapturedAt     *time.Time        `json:"capturedAt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" validate:"omitempty,max=32"`
}

// UploadRecordResponse is returned by the record upload endpoint. The
// response carries the created job so clients can start watching status
// immediately; the hand-off to the model server happens after the response
// is sent.
type UploadRecordResponse struct {
	Record *SourceRecord      `json:"record"`
	Job    *JobStatusResponse `json:"job"`
}

// JobStatusResponse is the read-only projection of a job exposed to its
// owner and to administrators.
type JobStatusResponse struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	CoarseStatus string     `json:"coarseStatus"`
	Log          []LogEntry `json:"log"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// NewJobStatusResponse projects a job into its owner-facing view.
func NewJobStatusResponse(job *AnalysisJob) *JobStatusResponse {
	return &JobStatusResponse{
		ID:           job.ID,
		Status:       job.Status,
		CoarseStatus: job.CoarseStatus(),
		Log:          job.Log,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		NextRetryAt:  job.NextRetryAt,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// RetryResponse is returned by the administrative retry endpoint.
type RetryResponse struct {
	Job         *JobStatusResponse `json:"job"`
	NextRetryAt time.Time          `json:"nextRetryAt"`
}

// CallbackResponse acknowledges a processed model-server callback.
type CallbackResponse struct {
	JobID    string    `json:"jobId"`
	ReportID string    `json:"reportId,omitempty"`
	Status   JobStatus `json:"status"`
}
