package model

import "time"

// AnalysisReport is the derived summary persisted exactly once per
// successfully completed job. Immutable after creation.
type AnalysisReport struct {
	ID             string           `json:"id"`
	JobID          string           `json:"jobId"`
	SourceRecordID string           `json:"sourceRecordId"`
	OwnerID        string           `json:"ownerId"`
	OverallScore   float64          `json:"overallScore"`
	Breakdown      BreakdownMetrics `json:"breakdown"`
	ArtifactURL    string           `json:"artifactUrl"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// MetricsRecord is the persisted metrics bundle for one job.
type MetricsRecord struct {
	ID        string               `json:"id"`
	JobID     string               `json:"jobId"`
	RecordID  string               `json:"recordId"`
	OwnerID   string               `json:"ownerId"`
	Scoring   ScoringMetrics       `json:"scoring"`
	Breakdown BreakdownMetrics     `json:"breakdown"`
	Benchmark *BenchmarkComparison `json:"benchmark,omitempty"`
	Insights  []string             `json:"insights,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// TempoRecord is one persisted minute-bucket of movement data.
type TempoRecord struct {
	ID    string `json:"id"`
	JobID string `json:"jobId"`
	TempoEntry
}

// MatchEvent is one persisted on-pitch event.
type MatchEvent struct {
	ID    string `json:"id"`
	JobID string `json:"jobId"`
	EventEntry
}

// ResultBundle groups everything the ingestor derives from one callback.
// The bundle is persisted as a single unit: all writes succeed together or
// the job does not complete.
type ResultBundle struct {
	Report  *AnalysisReport
	Metrics *MetricsRecord
	Tempo   []TempoRecord
	Events  []MatchEvent
}
