package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Source record status — the coarse mirror of the job lifecycle that
// record listings expose.
type RecordStatus string

const (
	RecordStatusUploaded RecordStatus = "uploaded"
	RecordStatusQueued   RecordStatus = "queued"
	RecordStatusAnalyzed RecordStatus = "analyzed"
	RecordStatusFailed   RecordStatus = "failed"
)

// Match event types delivered by the model server
type EventType string

const (
	EventPass         EventType = "pass"
	EventShot         EventType = "shot"
	EventDribble      EventType = "dribble"
	EventTackle       EventType = "tackle"
	EventInterception EventType = "interception"
	EventSprint       EventType = "sprint"
	EventDuel         EventType = "duel"
)
