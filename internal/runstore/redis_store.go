package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the Run Store with Redis when REDIS_ADDR is configured,
// giving run metadata a TTL enforced by the store itself rather than a
// background sweep, matching RUN_STORE_TTL_SECONDS end to end.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and returns a Store. The key prefix keeps
// run metadata namespaced from any other use of the same Redis instance.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "ideagent:run:",
	}
}

func (r *RedisStore) key(taskID string) string { return r.prefix + taskID }

func (r *RedisStore) Set(ctx context.Context, taskID string, summary Summary, ttl time.Duration) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("runstore: marshal summary: %w", err)
	}
	return r.client.Set(ctx, r.key(taskID), raw, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, taskID string) (*Summary, error) {
	raw, err := r.client.Get(ctx, r.key(taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: get: %w", err)
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("runstore: unmarshal summary: %w", err)
	}
	return &summary, nil
}

func (r *RedisStore) Delete(ctx context.Context, taskID string) error {
	return r.client.Del(ctx, r.key(taskID)).Err()
}
