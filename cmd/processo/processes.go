package main

import (
	"context"
	"fmt"

	"github.com/petrijr/processo"
)

// builtinProcesses are the processes available to `processo run` and the
// HTTP surface. Applications embedding the engine register their own; the
// CLI binary ships a couple of small ones for smoke-testing a deployment.
var builtinProcesses = []*processo.ProcessBuilder{
	echoProcess(),
	greetingProcess(),
}

func registerProcesses(eng processo.Engine) error {
	for _, b := range builtinProcesses {
		if err := b.Register(eng); err != nil {
			return err
		}
	}
	return nil
}

// echoProcess copies the "input" parameter to "output". Useful for checking
// that a backend round-trips parameters.
func echoProcess() *processo.ProcessBuilder {
	return processo.New("echo").
		Step("echo", func(ctx context.Context, state *processo.State) error {
			v, ok := state.Get("input")
			if !ok {
				return fmt.Errorf("parameter %q not set", "input")
			}
			state.Set("output", v)
			return nil
		})
}

// greetingProcess asks for a name interactively and produces a greeting.
// It exercises suspension, interaction events, and rollback.
func greetingProcess() *processo.ProcessBuilder {
	return processo.New("greeting").
		Interactive("askName",
			&processo.ParamFragment{Name: "name", Required: true},
			&processo.ParamFragment{Name: "salutation", Default: "Hello"},
		).
		StepWithRollback("compose",
			func(ctx context.Context, state *processo.State) error {
				name, err := processo.Param[string](state, "name")
				if err != nil {
					return err
				}
				salutation := processo.ParamOr(state, "salutation", "Hello")
				state.Set("greeting", fmt.Sprintf("%s, %s!", salutation, name))
				return nil
			},
			func(ctx context.Context, state *processo.State) error {
				state.Delete("greeting")
				return nil
			},
		)
}
