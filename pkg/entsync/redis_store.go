package entsync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLockStore is a LockStore backed by Redis, for deployments where
// several nodes serve the same clients. Locks are plain keys holding the
// client ID, taken with SET NX. A TTL guards against clients that vanish
// without releasing their locks.
type RedisLockStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ LockStore = (*RedisLockStore)(nil)

// RedisLockOption configures a RedisLockStore.
type RedisLockOption func(*RedisLockStore)

// WithLockPrefix sets the key prefix. Default "entsync:lock:".
func WithLockPrefix(prefix string) RedisLockOption {
	return func(s *RedisLockStore) { s.prefix = prefix }
}

// WithLockTTL sets the lock expiry. Zero means locks never expire.
// Default 30 minutes.
func WithLockTTL(ttl time.Duration) RedisLockOption {
	return func(s *RedisLockStore) { s.ttl = ttl }
}

// NewRedisLockStore creates a RedisLockStore.
func NewRedisLockStore(client *redis.Client, opts ...RedisLockOption) *RedisLockStore {
	s := &RedisLockStore{
		client: client,
		prefix: "entsync:lock:",
		ttl:    30 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisLockStore) key(targetID string) string {
	return s.prefix + targetID
}

func (s *RedisLockStore) TryAcquire(ctx context.Context, targetID, clientID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(targetID), clientID, s.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := s.Holder(ctx, targetID)
	if err != nil {
		return false, err
	}
	if holder != clientID {
		return false, nil
	}
	// Re-entrant acquire refreshes the TTL.
	if err := s.client.Set(ctx, s.key(targetID), clientID, s.ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisLockStore) Holder(ctx context.Context, targetID string) (string, error) {
	holder, err := s.client.Get(ctx, s.key(targetID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return holder, nil
}

func (s *RedisLockStore) Release(ctx context.Context, targetID, clientID string) error {
	holder, err := s.Holder(ctx, targetID)
	if err != nil {
		return err
	}
	if holder != clientID {
		return nil
	}
	return s.client.Del(ctx, s.key(targetID)).Err()
}

func (s *RedisLockStore) ReleaseAll(ctx context.Context, clientID string) (int, error) {
	released := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		holder, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return released, err
		}
		if holder != clientID {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return released, err
		}
		released++
	}
	if err := iter.Err(); err != nil {
		return released, err
	}
	return released, nil
}

func (s *RedisLockStore) Snapshot(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		holder, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		out[strings.TrimPrefix(key, s.prefix)] = holder
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
