package entsync

import (
	"context"
	"sync"
)

// LockStore holds the lock table: global entity ID -> client ID of the
// holder. Implementations must be safe for concurrent use.
type LockStore interface {
	// TryAcquire takes the lock for clientID. It reports whether the lock is
	// now held by clientID; acquiring a lock already held by the same client
	// succeeds (re-entrant).
	TryAcquire(ctx context.Context, targetID, clientID string) (bool, error)

	// Holder returns the client currently holding the lock, or "" if free.
	Holder(ctx context.Context, targetID string) (string, error)

	// Release frees the lock if clientID holds it. Releasing a lock held by
	// another client or not held at all is a no-op; the caller checks the
	// holder first when it needs conflict semantics.
	Release(ctx context.Context, targetID, clientID string) error

	// ReleaseAll frees every lock held by clientID. It returns the number of
	// locks released.
	ReleaseAll(ctx context.Context, clientID string) (int, error)

	// Snapshot returns a copy of the lock table.
	Snapshot(ctx context.Context) (map[string]string, error)
}

// MemoryLockStore is the default single-node LockStore, a mutex-guarded map.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]string
}

var _ LockStore = (*MemoryLockStore)(nil)

// NewMemoryLockStore creates an empty in-memory lock table.
func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{locks: make(map[string]string)}
}

func (s *MemoryLockStore) TryAcquire(ctx context.Context, targetID, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	holder, held := s.locks[targetID]
	if held && holder != clientID {
		return false, nil
	}
	s.locks[targetID] = clientID
	return true, nil
}

func (s *MemoryLockStore) Holder(ctx context.Context, targetID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.locks[targetID], nil
}

func (s *MemoryLockStore) Release(ctx context.Context, targetID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks[targetID] == clientID {
		delete(s.locks, targetID)
	}
	return nil
}

func (s *MemoryLockStore) ReleaseAll(ctx context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for target, holder := range s.locks {
		if holder == clientID {
			delete(s.locks, target)
			released++
		}
	}
	return released, nil
}

func (s *MemoryLockStore) Snapshot(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.locks))
	for k, v := range s.locks {
		out[k] = v
	}
	return out, nil
}
