// Package processo provides a lightweight, embeddable business-process engine
// for Go.
//
// Processo is designed for backend services that drive multi-step business
// operations with user interaction in the middle: a process runs step by step,
// suspends when it needs input, resumes when the input arrives, and can
// navigate backward by rolling executed steps back. It runs fully in Go,
// supports multiple persistence backends, and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small and idiomatic:
//
//  1. Engine
//  2. ProcessBuilder
//  3. StepFunc and RollbackFunc
//  4. Interaction and InteractionFragment
//  5. Worker and LocalRunner
//
// # Engine
//
// The Engine registers process definitions, persists instance state, and
// provides APIs to:
//   - start processes
//   - deliver interaction events to suspended instances
//   - roll instances back to an earlier step and re-execute forward
//   - resume failed instances
//   - read instance state and history
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// # Process model
//
// A process is an ordered sequence of named steps operating on a shared
// parameter namespace:
//
//	type StepFunc func(ctx context.Context, state *State) error
//
// Parameters are created on first assignment, survive suspension, and are
// visible to every later step. A step may carry a RollbackFunc that undoes
// its work; the engine keeps a rollback stack of executed steps so that
// RollbackTo can unwind them in reverse order, like back navigation in a
// multi-page form.
//
// # Interaction
//
// Interactive steps aggregate InteractionFragments, each owning a set of
// parameters. Entering the step initializes the fragments and suspends the
// instance. Interaction events are dispatched to the fragment that owns the
// triggering parameter: UPDATE events buffer values, an ACTION event
// completes the interaction once all required parameters are set.
//
// Example:
//
//	processo.New("OrderEntry").
//	    Step("loadCatalog", loadCatalog).
//	    Interactive("selectItems",
//	        &processo.ParamFragment{Name: "item", Required: true},
//	        &processo.ParamFragment{Name: "quantity", Default: 1},
//	    ).
//	    StepWithRollback("reserveStock", reserveStock, releaseStock)
//
// # Worker and LocalRunner
//
// A Worker pulls tasks from a queue and executes them against an engine:
// starting instances and delivering interaction events asynchronously.
// LocalRunner bundles an in-memory engine, queue, and worker into a single
// process-local helper for development and unit testing; NewSQLiteBundle and
// NewRedisBundle provide the durable equivalents.
//
// For examples, see the /examples directory or the project README.
package processo
