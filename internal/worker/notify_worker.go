package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/fieldmetrics/api/internal/service"
)

// notificationTTL bounds how long undelivered alerts sit in an owner's
// inbox list.
const notificationTTL = 7 * 24 * time.Hour

// NotifyWorker delivers queued owner notifications. Delivery appends to a
// per-owner Redis list that clients drain; swapping in push channels later
// only touches this worker.
type NotifyWorker struct {
	redis *redis.Client
}

// NewNotifyWorker creates a new notify worker
func NewNotifyWorker(redisClient *redis.Client) *NotifyWorker {
	return &NotifyWorker{redis: redisClient}
}

// ProcessTask delivers one notification
func (w *NotifyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.NotifyTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal notify payload: %w", err)
	}

	entry, err := json.Marshal(map[string]interface{}{
		"summary":   payload.Summary,
		"createdAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := fmt.Sprintf("notifications:%s", payload.OwnerID)
	pipe := w.redis.TxPipeline()
	pipe.RPush(ctx, key, entry)
	pipe.Expire(ctx, key, notificationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}

	log.Printf("Notification delivered to owner %s", payload.OwnerID)
	return nil
}
