package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/processo/pkg/api"
)

// RedisInstanceStore is an InstanceStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id>            => gob-encoded redisInstancePayload
//	<prefix>lease:<id>           => lease owner (with TTL)
//	<prefix>idx:all              => SET of all instance IDs
//	<prefix>idx:proc:<process>   => SET of instance IDs for a given process
//	<prefix>idx:status:<status>  => SET of instance IDs for a given status
//
// The indexes are best-effort; they are always updated on Save/Update, and
// ListInstances filters on the decoded payload.
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ InstanceStore = (*RedisInstanceStore)(nil)

type redisInstancePayload struct {
	ID          string
	Process     string
	Status      string
	CurrentStep int
	Params      []byte
	Executed    []int
	Awaiting    []string
	Error       string
}

// NewRedisInstanceStore creates a RedisInstanceStore.
// prefix is optional but recommended (e.g. "processo:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "processo:"
	}
	return &RedisInstanceStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisInstanceStore) keyInstance(id string) string {
	return s.prefix + "inst:" + id
}

func (s *RedisInstanceStore) keyLease(id string) string {
	return s.prefix + "lease:" + id
}

func (s *RedisInstanceStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisInstanceStore) keyProcess(name string) string {
	return s.prefix + "idx:proc:" + name
}

func (s *RedisInstanceStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

func encodeRedisPayload(inst *api.ProcessInstance) ([]byte, error) {
	paramBytes, err := encodeValue(inst.Params)
	if err != nil {
		return nil, err
	}

	errStr := ""
	if inst.Err != nil {
		errStr = inst.Err.Error()
	}

	payload := redisInstancePayload{
		ID:          inst.ID,
		Process:     inst.Name,
		Status:      string(inst.Status),
		CurrentStep: inst.CurrentStep,
		Params:      paramBytes,
		Executed:    inst.Executed,
		Awaiting:    inst.AwaitingParams,
		Error:       errStr,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisPayload(data []byte) (*api.ProcessInstance, error) {
	if len(data) == 0 {
		return nil, ErrInstanceNotFound
	}
	var payload redisInstancePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	params, err := decodeValue[map[string]any](payload.Params)
	if err != nil {
		return nil, err
	}

	inst := &api.ProcessInstance{
		ID:             payload.ID,
		Name:           payload.Process,
		Status:         api.Status(payload.Status),
		CurrentStep:    payload.CurrentStep,
		Params:         params,
		Executed:       payload.Executed,
		AwaitingParams: payload.Awaiting,
	}
	if payload.Error != "" {
		inst.Err = errors.New(payload.Error)
	}

	return inst, nil
}

func (s *RedisInstanceStore) SaveInstance(inst *api.ProcessInstance) error {
	ctx := context.Background()

	data, err := encodeRedisPayload(inst)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyInstance(inst.ID), data, 0).Err(); err != nil {
		return err
	}

	// Update indexes (best-effort; we don't treat index failures as fatal)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), inst.ID)
	pipe.SAdd(ctx, s.keyProcess(inst.Name), inst.ID)
	pipe.SAdd(ctx, s.keyStatus(inst.Status), inst.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisInstanceStore) UpdateInstance(inst *api.ProcessInstance) error {
	ctx := context.Background()

	exists, err := s.client.Exists(ctx, s.keyInstance(inst.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrInstanceNotFound
	}

	data, err := encodeRedisPayload(inst)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyInstance(inst.ID), data, 0).Err(); err != nil {
		return err
	}

	// Index updates: we just re-add; some stale index entries may remain if
	// the status changed, but ListInstances filters by payload.
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), inst.ID)
	pipe.SAdd(ctx, s.keyProcess(inst.Name), inst.ID)
	pipe.SAdd(ctx, s.keyStatus(inst.Status), inst.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisInstanceStore) GetInstance(id string) (*api.ProcessInstance, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.keyInstance(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeRedisPayload(data)
}

func (s *RedisInstanceStore) ListInstances(filter InstanceFilter) ([]*api.ProcessInstance, error) {
	ctx := context.Background()

	var ids []string
	var err error

	switch {
	case filter.ProcessName != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx,
			s.keyProcess(filter.ProcessName),
			s.keyStatus(filter.Status),
		).Result()
	case filter.ProcessName != "":
		ids, err = s.client.SMembers(ctx, s.keyProcess(filter.ProcessName)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.ProcessInstance{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.ProcessInstance{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyInstance(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var instances []*api.ProcessInstance
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		inst, err := decodeRedisPayload(data)
		if err != nil {
			return nil, err
		}
		// Stale index entries are filtered here.
		if filter.ProcessName != "" && inst.Name != filter.ProcessName {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

func (s *RedisInstanceStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	key := s.keyLease(instanceID)

	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	// Re-entrant: the same owner may re-acquire and refresh the TTL.
	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Lease expired between SetNX and Get; try once more.
			return s.client.SetNX(ctx, key, owner, ttl).Result()
		}
		return false, err
	}
	if current != owner {
		return false, nil
	}
	if err := s.client.Set(ctx, key, owner, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisInstanceStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	key := s.keyLease(instanceID)

	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInstanceNotFound
		}
		return err
	}
	if current != owner {
		return ErrInstanceNotFound
	}
	return s.client.Set(ctx, key, owner, ttl).Err()
}

func (s *RedisInstanceStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	key := s.keyLease(instanceID)

	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if current != owner {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}
