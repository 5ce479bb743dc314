package api

import (
	"context"
	"encoding/gob"
	"errors"
	"time"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register(InteractionEvent{})
}

// Status represents the lifecycle state of a process instance.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusRunning    Status = "RUNNING"
	StatusSuspended  Status = "SUSPENDED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRolledBack Status = "ROLLED_BACK"
)

// StepFunc performs the forward work of a process step. It reads and writes
// process parameters through the State and returns an error on failure.
type StepFunc func(ctx context.Context, state *State) error

// RollbackFunc undoes the work of a previously executed step. A step with a
// nil RollbackFunc does not support rollback and blocks any rollback chain
// that would have to cross it.
type RollbackFunc func(ctx context.Context, state *State) error

// StepDefinition describes a named process step.
//
// Interactive steps carry a non-nil Interaction; for those, Fn is derived
// from the interaction and should not be set by callers.
type StepDefinition struct {
	Name        string
	Fn          StepFunc
	Rollback    RollbackFunc
	Retry       *RetryPolicy
	Interaction *Interaction
}

// CanRollback reports whether this step supports rollback.
func (d StepDefinition) CanRollback() bool {
	return d.Rollback != nil
}

// ProcessDefinition describes a process as an ordered sequence of steps.
type ProcessDefinition struct {
	Name  string
	Steps []StepDefinition
}

// StepIndex returns the index of the step with the given name, or -1.
func (d ProcessDefinition) StepIndex(name string) int {
	for i, s := range d.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// ProcessInstance holds the runtime state of a process run.
type ProcessInstance struct {
	ID     string
	Name   string
	Status Status
	Err    error

	// Params is the parameter namespace of the instance. Parameters are
	// created on first assignment and survive suspension and resumption.
	Params map[string]any

	// CurrentStep tracks progress through the process steps.
	// Semantics:
	//   - Before any steps run: 0 (default)
	//   - While running or suspended in step i: i
	//   - After successful completion: len(steps)
	//   - On failure: index of the step that failed.
	CurrentStep int

	// Executed is the rollback stack: indices of successfully executed
	// steps in execution order. A step is on the stack iff it executed
	// and has not been rolled back.
	Executed []int

	// AwaitingParams lists the parameters the pending interaction is
	// waiting on. Empty unless Status == StatusSuspended.
	AwaitingParams []string
}

// Suspended reports whether the instance is parked awaiting interaction.
func (p *ProcessInstance) Suspended() bool {
	return p.Status == StatusSuspended
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// ProcessName, if non-empty, limits results to instances of the given process.
	ProcessName string

	// Status, if non-empty, limits results to instances with the given status.
	Status Status
}

// RetryPolicy controls how a step is retried when it returns an error.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
type RetryPolicy struct {
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the per-attempt delay. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt; values <= 0 default
	// to 2.0 (standard exponential backoff).
	BackoffMultiplier float64
}

// awaitInteractionError is returned by interactive steps that want to park
// the process until interaction events arrive via Engine.Interact.
type awaitInteractionError struct {
	Params []string
}

func (e *awaitInteractionError) Error() string {
	return "awaiting interaction"
}

// NewAwaitInteractionError is primarily intended for use by Interaction, but
// can be returned by custom steps to integrate with the engine's suspension
// semantics. params names the parameters the step is waiting on.
func NewAwaitInteractionError(params ...string) error {
	return &awaitInteractionError{Params: params}
}

// IsAwaitInteractionError returns (awaitedParams, true) if err indicates
// that the step wants to suspend awaiting interaction.
func IsAwaitInteractionError(err error) ([]string, bool) {
	var w *awaitInteractionError
	if errors.As(err, &w) {
		return w.Params, true
	}
	return nil, false
}
