package api

import "context"

// Engine is the high-level process engine API. One HTTP request (or one
// caller) drives one instance at a time; cross-request coordination happens
// through the instance store.
type Engine interface {
	// Register registers a process definition by name.
	Register(def ProcessDefinition) error

	// Start creates a new instance of the named process, seeds its
	// parameter namespace with params, and executes steps in order until
	// the process completes, fails, or suspends awaiting interaction.
	Start(ctx context.Context, name string, params map[string]any) (*ProcessInstance, error)

	// Interact delivers an interaction event to a suspended instance.
	// The event is dispatched to the fragment that registered interest in
	// the triggering parameter; if the interaction completes, execution
	// proceeds with the following steps.
	Interact(ctx context.Context, id string, ev InteractionEvent) (*ProcessInstance, error)

	// Resume re-runs a FAILED instance from the step that failed, keeping
	// its parameters and rollback stack.
	Resume(ctx context.Context, id string) (*ProcessInstance, error)

	// CanRollbackTo reports whether every executed step from the top of
	// the rollback stack down to and including the named step supports
	// rollback. It is consulted defensively before RollbackTo.
	CanRollbackTo(ctx context.Context, id string, stepName string) (bool, error)

	// RollbackTo walks backward through the executed steps, calling each
	// step's RollbackFunc, until the named step (inclusive) has been
	// undone, then re-executes forward from that step. A rollback error
	// aborts the whole chain and propagates.
	RollbackTo(ctx context.Context, id string, stepName string) (*ProcessInstance, error)

	// Cancel rolls back the entire instance and marks it ROLLED_BACK.
	Cancel(ctx context.Context, id string) (*ProcessInstance, error)

	// GetInstance looks up a process instance by ID.
	GetInstance(ctx context.Context, id string) (*ProcessInstance, error)

	// ListInstances returns process instances matching the given options.
	// If options are zero-valued, all instances are returned.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*ProcessInstance, error)

	// RecoverStuckInstances scans for instances still marked RUNNING
	// (for example after a crash) and marks them FAILED. It returns the
	// number of instances it updated, and is intended to be called on
	// startup before accepting new work.
	RecoverStuckInstances(ctx context.Context) (int, error)
}
