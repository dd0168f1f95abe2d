package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage announces a job status transition
type WSStatusMessage struct {
	Type         string    `json:"type"`
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	CoarseStatus string    `json:"coarseStatus"`
	Note         string    `json:"note,omitempty"`
}

// WSCompleteMessage announces job completion with the report summary
type WSCompleteMessage struct {
	Type         string  `json:"type"`
	JobID        string  `json:"jobId"`
	ReportID     string  `json:"reportId"`
	OverallScore float64 `json:"overallScore"`
	ArtifactURL  string  `json:"artifactUrl,omitempty"`
}

// WSErrorMessage announces a job failure
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError carries error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
