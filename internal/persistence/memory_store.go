package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/processo/pkg/api"
	"github.com/petrijr/processo/pkg/history"
)

// InMemoryStore is a simple, goroutine-safe implementation of InstanceStore
// and history.RecordStore backed by maps.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*api.ProcessInstance
	leases    map[string]lease
	records   []history.Record
	nextRecID int64
}

type lease struct {
	owner string
	until time.Time
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*api.ProcessInstance),
		leases:    make(map[string]lease),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ InstanceStore = (*InMemoryStore)(nil)

var _ history.RecordStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveInstance(inst *api.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}

	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.ProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}

	return cloneInstance(inst), nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.ProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.ProcessInstance

	for _, inst := range s.instances {
		if filter.ProcessName != "" && inst.Name != filter.ProcessName {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		result = append(result, cloneInstance(inst))
	}

	return result, nil
}

func (s *InMemoryStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if l, ok := s.leases[instanceID]; ok && l.owner != owner && l.until.After(now) {
		return false, nil
	}
	s.leases[instanceID] = lease{owner: owner, until: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[instanceID]
	if !ok || l.owner != owner {
		return ErrInstanceNotFound
	}
	l.until = time.Now().Add(ttl)
	s.leases[instanceID] = l
	return nil
}

func (s *InMemoryStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[instanceID]; ok && l.owner == owner {
		delete(s.leases, instanceID)
	}
	return nil
}

func (s *InMemoryStore) AppendRecords(ctx context.Context, recs []history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		s.nextRecID++
		rec.ID = s.nextRecID
		s.records = append(s.records, rec)
	}
	return nil
}

func (s *InMemoryStore) ListRecords(ctx context.Context, target string) ([]history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []history.Record
	for _, rec := range s.records {
		if rec.Target == target {
			out = append(out, rec)
		}
	}
	return out, nil
}

// cloneInstance copies an instance so callers cannot mutate stored state
// (or vice versa) through shared maps and slices.
func cloneInstance(inst *api.ProcessInstance) *api.ProcessInstance {
	out := *inst
	if inst.Params != nil {
		out.Params = make(map[string]any, len(inst.Params))
		for k, v := range inst.Params {
			out.Params[k] = v
		}
	}
	out.Executed = append([]int(nil), inst.Executed...)
	out.AwaitingParams = append([]string(nil), inst.AwaitingParams...)
	return &out
}
