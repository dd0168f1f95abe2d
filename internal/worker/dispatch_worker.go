package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/fieldmetrics/api/internal/service"
)

// DispatchWorker processes queued hand-off tasks. One task is one dispatch
// attempt; the worker always returns nil for attempt-level failures so the
// queue never re-runs a task on its own.
type DispatchWorker struct {
	dispatcher *service.DispatchService
}

// NewDispatchWorker creates a new dispatch worker
func NewDispatchWorker(dispatcher *service.DispatchService) *DispatchWorker {
	return &DispatchWorker{dispatcher: dispatcher}
}

// ProcessTask hands one job off to the model server
func (w *DispatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.DispatchTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal dispatch payload: %w", err)
	}

	log.Printf("Dispatching job %s", payload.JobID)
	return w.dispatcher.HandOff(ctx, payload.JobID)
}
