package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue backed by a Redis list (LPUSH / BRPOP). Tasks are
// gob-encoded. NotBefore is honored at dequeue time: a task that is not yet
// eligible is pushed back to the tail and the consumer waits briefly.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a RedisQueue over the given list key.
// key is optional; it defaults to "processo:tasks".
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "processo:tasks"
	}
	return &RedisQueue{client: client, key: key}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := t.encode()
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Timed out waiting; re-check ctx and keep blocking.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}
			return nil, err
		}

		// BRPop returns [key, value].
		task, err := decodeTask([]byte(res[1]))
		if err != nil {
			return nil, err
		}

		if !task.NotBefore.IsZero() && task.NotBefore.After(time.Now()) {
			// Not eligible yet: push back and wait a little.
			data, err := task.encode()
			if err != nil {
				return nil, err
			}
			if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(20 * time.Millisecond):
				continue
			}
		}

		return task, nil
	}
}

func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
