package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// InboxService reads the per-owner notification lists the notify worker
// writes to.
type InboxService struct {
	redis *redis.Client
}

func NewInboxService(redisClient *redis.Client) *InboxService {
	return &InboxService{redis: redisClient}
}

// Peek returns pending notifications without consuming them.
func (s *InboxService) Peek(ctx context.Context, ownerID string) ([]json.RawMessage, error) {
	key := fmt.Sprintf("notifications:%s", ownerID)
	entries, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e))
	}
	return out, nil
}

// Drain returns pending notifications and clears the inbox in one
// transaction, so a notification is handed to at most one reader.
func (s *InboxService) Drain(ctx context.Context, ownerID string) ([]json.RawMessage, error) {
	key := fmt.Sprintf("notifications:%s", ownerID)

	pipe := s.redis.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	entries := rangeCmd.Val()
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e))
	}
	return out, nil
}
