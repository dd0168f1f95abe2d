package service

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Notifier queues a user-facing alert for delivery outside the request
// path. Implementations must not block on external delivery channels.
type Notifier interface {
	Notify(ctx context.Context, ownerID, summary string) error
}

// QueueNotifier enqueues notification tasks for the notify worker. Each
// call produces exactly one delivery attempt record.
type QueueNotifier struct {
	queue Enqueuer
}

func NewQueueNotifier(queue Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) Notify(ctx context.Context, ownerID, summary string) error {
	task, err := NewNotifyTask(ownerID, summary)
	if err != nil {
		return err
	}
	_, err = n.queue.Enqueue(task,
		asynq.Queue("notify"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	return err
}
