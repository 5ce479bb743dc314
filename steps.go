package processo

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/processo/pkg/api"
)

// SetParamStep returns a step that assigns a fixed value to a parameter.
func SetParamStep(name string, value any) StepFunc {
	return func(ctx context.Context, state *State) error {
		state.Set(name, value)
		return nil
	}
}

// DeleteParamStep returns a step that removes a parameter. Deleting a missing
// parameter is a no-op.
func DeleteParamStep(name string) StepFunc {
	return func(ctx context.Context, state *State) error {
		state.Delete(name)
		return nil
	}
}

// RequireParamsStep returns a step that fails unless all named parameters
// are set. Useful as a guard between an interactive step and the steps that
// consume its input.
func RequireParamsStep(names ...string) StepFunc {
	return func(ctx context.Context, state *State) error {
		for _, n := range names {
			if !state.Has(n) {
				return fmt.Errorf("required parameter %q not set", n)
			}
		}
		return nil
	}
}

// AwaitParamsStep returns a step that suspends the process until the named
// parameters are all set via interaction events. Unlike Interactive steps it
// performs no initialization or validation of its own.
func AwaitParamsStep(names ...string) StepFunc {
	return func(ctx context.Context, state *State) error {
		missing := make([]string, 0, len(names))
		for _, n := range names {
			if !state.Has(n) {
				missing = append(missing, n)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		return api.NewAwaitInteractionError(missing...)
	}
}

// SleepStep returns a step that sleeps for the given duration, respecting
// context cancellation.
func SleepStep(d time.Duration) StepFunc {
	return func(ctx context.Context, state *State) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}
}

// TransformStep returns a step that reads the parameter from, applies fn,
// and writes the result to the parameter to.
func TransformStep[I, O any](from, to string, fn func(context.Context, I) (O, error)) StepFunc {
	return func(ctx context.Context, state *State) error {
		in, err := api.Param[I](state, from)
		if err != nil {
			return err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return err
		}
		state.Set(to, out)
		return nil
	}
}
