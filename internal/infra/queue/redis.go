package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
)

// RedisStampPublisher публикует события об отметках в список Redis.
// Потребитель забирает их с другого конца через BRPOP.
type RedisStampPublisher struct {
	client *redis.Client
	key    string
}

// NewRedisStampPublisher создаёт публикатор по указанному ключу.
func NewRedisStampPublisher(client *redis.Client, key string) *RedisStampPublisher {
	return &RedisStampPublisher{client: client, key: key}
}

// PublishStamp реализует domain.StampPublisher.
func (q *RedisStampPublisher) PublishStamp(ctx context.Context, event domain.StampEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}
