package processo

import (
	"fmt"

	"github.com/petrijr/processo/pkg/api"
)

// ProcessBuilder provides a fluent API for defining processes:
//
//	proc := processo.New("OrderEntry").
//	    Step("loadCatalog", loadCatalog).
//	    Interactive("selectItems",
//	        &processo.ParamFragment{Name: "item", Required: true},
//	        &processo.ParamFragment{Name: "quantity", Default: 1},
//	    ).
//	    StepWithRollback("reserveStock", reserveStock, releaseStock)
//
//	if err := proc.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := processo.Start(ctx, engine, proc.Name(), nil)
type ProcessBuilder struct {
	def api.ProcessDefinition
}

// New creates a new process builder with the given name.
func New(name string) *ProcessBuilder {
	return &ProcessBuilder{
		def: api.ProcessDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
	}
}

// Name returns the process name.
func (b *ProcessBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying ProcessDefinition.
// Typically used when interacting with lower-level APIs.
func (b *ProcessBuilder) Definition() ProcessDefinition {
	return b.def
}

// Step appends a basic step to the process. Steps added this way cannot be
// rolled back; use StepWithRollback when back navigation must cross them.
func (b *ProcessBuilder) Step(name string, fn StepFunc) *ProcessBuilder {
	b.mustName(name)
	if fn == nil {
		panic(fmt.Sprintf("processo: step %q has nil function", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name: name,
		Fn:   fn,
	})
	return b
}

// StepWithRollback appends a step with an explicit rollback function.
func (b *ProcessBuilder) StepWithRollback(name string, fn StepFunc, rollback RollbackFunc) *ProcessBuilder {
	b.mustName(name)
	if fn == nil {
		panic(fmt.Sprintf("processo: step %q has nil function", name))
	}
	if rollback == nil {
		panic(fmt.Sprintf("processo: step %q has nil rollback function", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:     name,
		Fn:       fn,
		Rollback: rollback,
	})
	return b
}

// StepWithRetry appends a step that uses the given retry policy.
func (b *ProcessBuilder) StepWithRetry(name string, fn StepFunc, retry RetryPolicy) *ProcessBuilder {
	b.mustName(name)
	if fn == nil {
		panic(fmt.Sprintf("processo: step %q has nil function", name))
	}

	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	r := retry

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:  name,
		Fn:    fn,
		Retry: &r,
	})
	return b
}

// Interactive appends an interactive step built from the given fragments.
// Entering the step initializes the fragments and suspends the process until
// an action event completes the interaction. Rolling back the step removes
// the parameters the fragments own.
//
// Interactive panics if two fragments claim the same parameter; definitions
// are built at init time, where failing fast is the right behavior.
func (b *ProcessBuilder) Interactive(name string, fragments ...InteractionFragment) *ProcessBuilder {
	b.mustName(name)

	in, err := api.NewInteraction(fragments...)
	if err != nil {
		panic(fmt.Sprintf("processo: step %q: %v", name, err))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:        name,
		Interaction: in,
	})
	return b
}

// Register registers the built process with the given engine.
func (b *ProcessBuilder) Register(eng Engine) error {
	return eng.Register(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *ProcessBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}

func (b *ProcessBuilder) mustName(name string) {
	if name == "" {
		panic("processo: step name must not be empty")
	}
}
