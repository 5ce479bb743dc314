package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownParameter is returned when an interaction event names a
	// parameter the suspended step is not waiting on.
	ErrUnknownParameter = errors.New("parameter not awaited by the current step")

	// ErrNotSuspended is returned when an interaction event is delivered
	// to an instance that is not awaiting input.
	ErrNotSuspended = errors.New("instance is not suspended")

	// ErrRollbackNotSupported is returned when a rollback would have to
	// cross a step that has no RollbackFunc.
	ErrRollbackNotSupported = errors.New("rollback not supported")
)

// ProcessError wraps a step failure with its process and step context.
// It unwraps to the underlying error.
type ProcessError struct {
	Process string
	Step    string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s: step %s: %v", e.Process, e.Step, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// NewProcessError wraps err with process and step context. It returns nil
// if err is nil.
func NewProcessError(process, step string, err error) error {
	if err == nil {
		return nil
	}
	return &ProcessError{Process: process, Step: step, Err: err}
}
