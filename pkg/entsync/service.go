// Package entsync coordinates exclusive edit access to shared entities
// across clients.
//
// A client requests a lock on an entity's global ID before editing it and
// releases the lock when done. The lock table lives in a LockStore: an
// in-memory table for single-node deployments, or Redis for multi-node ones.
package entsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrLockHeld is returned when a lock operation conflicts with a lock held
// by another client.
var ErrLockHeld = errors.New("entsync: lock held by another client")

// Service mediates entity lock requests against a LockStore.
type Service struct {
	store  LockStore
	logger *slog.Logger
}

// NewService creates a Service over the given store. If logger is nil,
// slog.Default() is used.
func NewService(store LockStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// RequestLock takes the lock on targetID for clientID. Requesting a lock the
// client already holds succeeds. It returns ErrLockHeld when another client
// holds the lock.
func (s *Service) RequestLock(ctx context.Context, clientID, targetID string) error {
	if clientID == "" || targetID == "" {
		return errors.New("entsync: client_id and target_id are required")
	}

	ok, err := s.store.TryAcquire(ctx, targetID, clientID)
	if err != nil {
		return err
	}
	if !ok {
		holder, _ := s.store.Holder(ctx, targetID)
		s.logger.DebugContext(ctx, "lock_conflict",
			slog.String("target_id", targetID),
			slog.String("client_id", clientID),
			slog.String("holder", holder),
		)
		return fmt.Errorf("target %s: %w", targetID, ErrLockHeld)
	}

	s.logger.DebugContext(ctx, "lock_acquired",
		slog.String("target_id", targetID),
		slog.String("client_id", clientID),
	)
	return nil
}

// ReleaseLock frees the lock on targetID held by clientID. Releasing a free
// lock is a no-op; releasing a lock held by another client returns
// ErrLockHeld.
func (s *Service) ReleaseLock(ctx context.Context, clientID, targetID string) error {
	if clientID == "" || targetID == "" {
		return errors.New("entsync: client_id and target_id are required")
	}

	holder, err := s.store.Holder(ctx, targetID)
	if err != nil {
		return err
	}
	if holder == "" {
		return nil
	}
	if holder != clientID {
		return fmt.Errorf("target %s: %w", targetID, ErrLockHeld)
	}

	if err := s.store.Release(ctx, targetID, clientID); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "lock_released",
		slog.String("target_id", targetID),
		slog.String("client_id", clientID),
	)
	return nil
}

// ReleaseAll frees every lock held by clientID, typically on session end.
// It returns the number of locks released.
func (s *Service) ReleaseAll(ctx context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, errors.New("entsync: client_id is required")
	}

	released, err := s.store.ReleaseAll(ctx, clientID)
	if err != nil {
		return 0, err
	}

	if released > 0 {
		s.logger.DebugContext(ctx, "locks_released_all",
			slog.String("client_id", clientID),
			slog.Int("count", released),
		)
	}
	return released, nil
}

// Locks returns a snapshot of the lock table: target ID -> holding client.
func (s *Service) Locks(ctx context.Context) (map[string]string, error) {
	return s.store.Snapshot(ctx)
}
