package model

// CallbackResult is the payload the model server delivers once analysis of
// a record finishes. It is validated once, decomposed into persisted
// entities by the result ingestor and never stored verbatim. Field names
// follow the model server's wire format.
type CallbackResult struct {
	JobID string `json:"job_id" validate:"required"`
	// Status is empty or "completed" on success; "failed" carries Error
	// instead of metrics.
	Status    string               `json:"status,omitempty" validate:"omitempty,oneof=completed failed"`
	Error     string               `json:"error,omitempty"`
	Scoring   ScoringMetrics       `json:"scoring_metrics"`
	Breakdown BreakdownMetrics     `json:"breakdown_metrics"`
	Benchmark *BenchmarkComparison `json:"benchmark_comparison,omitempty"`
	Tempo     []TempoEntry         `json:"tempo_metrics,omitempty"`
	Insights  []string             `json:"insights,omitempty"`
	Events    []EventEntry         `json:"events,omitempty"`
}

// ScoringMetrics is the headline score bundle.
type ScoringMetrics struct {
	OverallScore float64 `json:"overall_score"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// BreakdownMetrics splits the overall score into skill dimensions.
type BreakdownMetrics struct {
	Technical float64 `json:"technical"`
	Tactical  float64 `json:"tactical"`
	Physical  float64 `json:"physical"`
	Mental    float64 `json:"mental"`
}

// BenchmarkComparison positions the player against a peer cohort.
type BenchmarkComparison struct {
	PeerAverage float64 `json:"peer_average"`
	Percentile  float64 `json:"percentile"`
	CohortSize  int     `json:"cohort_size,omitempty"`
	AgeGroup    string  `json:"age_group,omitempty"`
}

// TempoEntry is one minute-bucket of movement intensity data.
type TempoEntry struct {
	Minute         int     `json:"minute"`
	DistanceMeters float64 `json:"distance_meters"`
	Sprints        int     `json:"sprints"`
	AvgSpeedKmh    float64 `json:"avg_speed_kmh"`
	MaxSpeedKmh    float64 `json:"max_speed_kmh"`
}

// EventEntry is one raw on-pitch event detected by the model server.
type EventEntry struct {
	Type        EventType `json:"type"`
	TimestampMS int64     `json:"timestamp_ms"`
	Label       string    `json:"label,omitempty"`
	Success     bool      `json:"success"`
	PositionX   float64   `json:"position_x,omitempty"`
	PositionY   float64   `json:"position_y,omitempty"`
}
