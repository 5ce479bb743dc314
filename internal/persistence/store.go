package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/processo/pkg/api"
)

// ErrInstanceNotFound is returned when a process instance is not found.
var ErrInstanceNotFound = errors.New("instance not found")

// InstanceFilter is used to select instances from the store.
// Empty string / zero status mean "no filter" for that field.
type InstanceFilter struct {
	ProcessName string
	Status      api.Status
}

// InstanceStore handles storage of process instances.
type InstanceStore interface {
	SaveInstance(inst *api.ProcessInstance) error
	UpdateInstance(inst *api.ProcessInstance) error
	GetInstance(id string) (*api.ProcessInstance, error)
	ListInstances(filter InstanceFilter) ([]*api.ProcessInstance, error)

	// TryAcquireLease attempts to acquire (or re-acquire) a lease on an
	// instance. If the instance is currently leased by another owner and
	// the lease has not expired, it returns acquired=false, err=nil.
	//
	// Implementations should treat a lease owned by the same owner as
	// re-entrant.
	TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (acquired bool, err error)

	// RenewLease extends an existing lease owned by 'owner' for the given ttl.
	RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error

	// ReleaseLease releases a lease if it is owned by 'owner'. It is idempotent.
	ReleaseLease(ctx context.Context, instanceID, owner string) error
}
