package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
)

// ErrMalformedPayload marks a queue message that could not be decoded.
// The raw message is discarded; callers log and move on.
var ErrMalformedPayload = errors.New("malformed queue payload")

// RedisQueue is a durable FIFO list carrying job payloads from the
// producer to the worker. Pushes append to the tail, pops remove from
// the head with a bounded blocking wait.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	name := cfg.QueueName
	if name == "" {
		name = "weather:jobs"
	}
	return &RedisQueue{client: client, name: name}
}

// NewRedisQueueWithClient wraps an existing client, used by tests.
func NewRedisQueueWithClient(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

// Ping verifies connectivity at startup.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Push appends a serialized payload to the tail of the queue. It never
// blocks on the consumer side.
func (q *RedisQueue) Push(ctx context.Context, payload models.JobPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := q.client.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", q.name, err)
	}
	return nil
}

// PopBlocking removes and returns the head payload, waiting up to
// timeout for one to appear. ok is false when the wait elapsed with the
// queue empty, letting the caller observe shutdown between pops. An
// undecodable message is consumed and reported as ErrMalformedPayload.
func (q *RedisQueue) PopBlocking(ctx context.Context, timeout time.Duration) (models.JobPayload, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return models.JobPayload{}, false, nil
	}
	if err != nil {
		return models.JobPayload{}, false, fmt.Errorf("pop from %s: %w", q.name, err)
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return models.JobPayload{}, false, fmt.Errorf("%w: unexpected BLPOP reply of %d elements", ErrMalformedPayload, len(res))
	}
	var payload models.JobPayload
	if err := json.Unmarshal([]byte(res[1]), &payload); err != nil {
		return models.JobPayload{}, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, true, nil
}

// Depth returns the number of payloads waiting in the queue.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}
