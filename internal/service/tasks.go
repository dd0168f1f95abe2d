package service

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/fieldmetrics/api/internal/model"
)

const (
	TaskTypeDispatch = "analysis:dispatch"
	TaskTypeNotify   = "notify:owner"
)

// Enqueuer is the slice of asynq.Client the services need. Kept as an
// interface so tests can capture enqueued tasks without Redis.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Broadcaster pushes job lifecycle events to watching clients. Satisfied
// by the websocket hub; services tolerate a nil broadcaster.
type Broadcaster interface {
	BroadcastStatus(jobID string, status model.JobStatus, coarse, note string)
	BroadcastComplete(jobID, reportID string, overallScore float64, artifactURL string)
	BroadcastError(jobID string, code, message string)
}

// DispatchTaskPayload identifies the job a dispatch task must hand off.
type DispatchTaskPayload struct {
	JobID string `json:"jobId"`
}

// NewDispatchTask builds the durable hand-off task for a job.
func NewDispatchTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(DispatchTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDispatch, data), nil
}

// NotifyTaskPayload carries one user-facing alert.
type NotifyTaskPayload struct {
	OwnerID string `json:"ownerId"`
	Summary string `json:"summary"`
}

// NewNotifyTask builds a notification task.
func NewNotifyTask(ownerID, summary string) (*asynq.Task, error) {
	data, err := json.Marshal(NotifyTaskPayload{OwnerID: ownerID, Summary: summary})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}
