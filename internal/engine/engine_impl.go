package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/processo/internal/persistence"
	"github.com/petrijr/processo/pkg/api"
	"github.com/petrijr/processo/pkg/history"
)

// engineImpl is a simple, synchronous, in-process engine implementation.
// One caller drives one instance at a time; concurrent callers coordinate
// through the instance store (and, in worker setups, through leases).
type engineImpl struct {
	registry  *processRegistry
	instances persistence.InstanceStore
	history   *history.Manager
	observer  api.Observer
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer
}

func NewInMemoryEngine() api.Engine {
	return NewInMemoryEngineWithObserver(nil)
}

func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Instances: mem,
			History:   mem,
		},
		Observer: obs,
	})
}

func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	inst, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	recs, err := persistence.NewSQLiteRecordStore(db)
	if err != nil {
		return nil, err
	}

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Instances: inst,
			History:   recs,
		},
		Observer: obs,
	}), nil
}

func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	return NewPostgresEngineWithObserver(db, nil)
}

func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	inst, err := persistence.NewPostgresInstanceStore(db)
	if err != nil {
		return nil, err
	}
	// For now, history records remain in-memory.
	mem := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Instances: inst,
			History:   mem,
		},
		Observer: obs,
	}), nil
}

// NewRedisEngine creates an engine that uses Redis for instance persistence.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewRedisEngineWithObserver(client, nil)
}

func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) api.Engine {
	inst := persistence.NewRedisInstanceStore(client, "processo:")
	// For now, history records remain in-memory, just like Postgres.
	mem := persistence.NewInMemoryStore()

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Instances: inst,
			History:   mem,
		},
		Observer: obs,
	})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	recs := cfg.Persistence.History
	if recs == nil {
		recs = persistence.NewInMemoryStore()
	}
	return &engineImpl{
		registry:  newProcessRegistry(),
		instances: cfg.Persistence.Instances,
		history:   history.NewManager(recs),
		observer:  obs,
	}
}

// NewEngine returns an Engine backed by the given persistence. External
// users access this via processo.NewInMemoryEngine and friends.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
	})
}

// History exposes the engine's history manager so that facade helpers can
// list audit records for an instance.
func (e *engineImpl) History() *history.Manager {
	return e.history
}

func (e *engineImpl) Register(def api.ProcessDefinition) error {
	if def.Name == "" {
		return errors.New("process name is required")
	}
	if len(def.Steps) == 0 {
		return errors.New("process must have at least one step")
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		if step.Interaction != nil {
			// Interactive steps derive their functions from the interaction.
			if step.Fn == nil {
				step.Fn = step.Interaction.Enter
			}
			if step.Rollback == nil {
				step.Rollback = step.Interaction.Rollback
			}
			continue
		}
		if step.Fn == nil {
			return fmt.Errorf("step %q of process %q has no function", step.Name, def.Name)
		}
	}

	return e.registry.Register(def)
}

func (e *engineImpl) Start(ctx context.Context, name string, params map[string]any) (*api.ProcessInstance, error) {
	def, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	// Copy the caller's map so the instance owns its parameter namespace.
	instParams := make(map[string]any, len(params))
	for k, v := range params {
		instParams[k] = v
	}

	inst := &api.ProcessInstance{
		ID:          uuid.NewString(),
		Name:        def.Name,
		Status:      api.StatusRunning,
		Params:      instParams,
		CurrentStep: 0,
	}

	e.observer.OnProcessStart(ctx, inst)

	// Persist the instance as soon as it starts.
	if err := e.instances.SaveInstance(inst); err != nil {
		inst.Status = api.StatusFailed
		inst.Err = err
		e.observer.OnProcessFailed(ctx, inst, err)
		return inst, err
	}

	grp := e.history.Begin(def.Name, inst.ID)
	_ = grp.Add(history.TypeProcessStarted, "")

	return e.executeFrom(ctx, def, inst, 0, grp)
}

func (e *engineImpl) Interact(ctx context.Context, id string, ev api.InteractionEvent) (*api.ProcessInstance, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}

	if !inst.Suspended() {
		return inst, fmt.Errorf("instance %s in status %s: %w", id, inst.Status, api.ErrNotSuspended)
	}

	def, err := e.registry.Get(inst.Name)
	if err != nil {
		return inst, err
	}
	if inst.CurrentStep < 0 || inst.CurrentStep >= len(def.Steps) {
		return inst, fmt.Errorf("instance %s suspended at invalid step %d", id, inst.CurrentStep)
	}

	step := def.Steps[inst.CurrentStep]

	if inst.Params == nil {
		inst.Params = make(map[string]any)
	}
	state := api.NewState(inst.Params)

	if step.Interaction == nil {
		// The step suspended through the await sentinel without declaring
		// fragments. The event's parameter must be one the step reported
		// awaiting; the value is stored and the step re-entered, which
		// re-suspends if input is still missing.
		awaited := false
		for _, n := range inst.AwaitingParams {
			if n == ev.Param {
				awaited = true
				break
			}
		}
		if !awaited {
			return inst, fmt.Errorf("instance %s step %q parameter %q: %w", id, step.Name, ev.Param, api.ErrUnknownParameter)
		}

		state.Set(ev.Param, ev.Value)

		inst.Status = api.StatusRunning
		inst.AwaitingParams = nil
		if err := e.instances.UpdateInstance(inst); err != nil {
			return inst, err
		}

		grp := e.history.Begin(def.Name, inst.ID)
		_ = grp.Add(history.TypeProcessResumed, step.Name)

		return e.executeFrom(ctx, def, inst, inst.CurrentStep, grp)
	}

	done, err := step.Interaction.Dispatch(ctx, state, ev)
	if err != nil {
		// A rejected event leaves the instance suspended with its previous
		// parameters; nothing to persist.
		return inst, err
	}

	if !done {
		// Buffer the accepted input and keep waiting.
		if err := e.instances.UpdateInstance(inst); err != nil {
			return inst, err
		}
		return inst, nil
	}

	// The interaction is complete; the interactive step counts as executed
	// and the process proceeds with the following steps.
	idx := inst.CurrentStep
	inst.Status = api.StatusRunning
	inst.AwaitingParams = nil
	inst.Executed = append(inst.Executed, idx)

	if err := e.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	e.observer.OnStepCompleted(ctx, inst, step.Name, idx, nil, 0)

	grp := e.history.Begin(def.Name, inst.ID)
	_ = grp.Add(history.TypeProcessResumed, step.Name)
	_ = grp.Add(history.TypeStepExecuted, step.Name)

	return e.executeFrom(ctx, def, inst, idx+1, grp)
}

func (e *engineImpl) Resume(ctx context.Context, id string) (*api.ProcessInstance, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}

	if inst.Status != api.StatusFailed {
		return nil, fmt.Errorf("cannot resume instance %s in status %s", id, inst.Status)
	}

	def, err := e.registry.Get(inst.Name)
	if err != nil {
		return nil, fmt.Errorf("process definition not found for instance %s: %w", id, err)
	}

	// Keep parameters and the rollback stack; retry from the failed step.
	inst.Status = api.StatusRunning
	inst.Err = nil

	if err := e.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	grp := e.history.Begin(def.Name, inst.ID)
	_ = grp.Add(history.TypeProcessResumed, "")

	return e.executeFrom(ctx, def, inst, inst.CurrentStep, grp)
}

func (e *engineImpl) CanRollbackTo(ctx context.Context, id string, stepName string) (bool, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return false, err
	}

	def, err := e.registry.Get(inst.Name)
	if err != nil {
		return false, err
	}

	target := def.StepIndex(stepName)
	if target < 0 {
		return false, fmt.Errorf("process %q has no step %q", def.Name, stepName)
	}

	return canRollbackChain(def, inst, target), nil
}

// canRollbackChain reports whether every step on the rollback stack, from
// the top down to and including target, supports rollback. It is false when
// target is not on the stack at all.
func canRollbackChain(def api.ProcessDefinition, inst *api.ProcessInstance, target int) bool {
	found := false
	for i := len(inst.Executed) - 1; i >= 0; i-- {
		idx := inst.Executed[i]
		if !def.Steps[idx].CanRollback() {
			return false
		}
		if idx == target {
			found = true
			break
		}
	}
	return found
}

func (e *engineImpl) RollbackTo(ctx context.Context, id string, stepName string) (*api.ProcessInstance, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case api.StatusSuspended, api.StatusCompleted, api.StatusFailed:
	default:
		return inst, fmt.Errorf("cannot roll back instance %s in status %s", id, inst.Status)
	}

	def, err := e.registry.Get(inst.Name)
	if err != nil {
		return inst, err
	}

	target := def.StepIndex(stepName)
	if target < 0 {
		return inst, fmt.Errorf("process %q has no step %q", def.Name, stepName)
	}

	if !canRollbackChain(def, inst, target) {
		return inst, fmt.Errorf("cannot roll back instance %s to step %q: %w", id, stepName, api.ErrRollbackNotSupported)
	}

	grp := e.history.Begin(def.Name, inst.ID)

	if err := e.unwindTo(ctx, def, inst, target, grp); err != nil {
		// The failed unwind is still audit-worthy.
		_ = grp.Commit(ctx)
		return inst, err
	}

	// Re-execute forward from the target step. For an interactive step this
	// re-enters the interaction and suspends again.
	inst.Status = api.StatusRunning
	inst.Err = nil
	inst.AwaitingParams = nil

	if err := e.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	return e.executeFrom(ctx, def, inst, target, grp)
}

func (e *engineImpl) Cancel(ctx context.Context, id string) (*api.ProcessInstance, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case api.StatusSuspended, api.StatusCompleted, api.StatusFailed, api.StatusRunning:
	default:
		return inst, fmt.Errorf("cannot cancel instance %s in status %s", id, inst.Status)
	}

	def, err := e.registry.Get(inst.Name)
	if err != nil {
		return inst, err
	}

	// Refuse outright when any executed step cannot be undone; a partial
	// unwind would leave work half-reverted behind a COMPLETED status.
	for _, idx := range inst.Executed {
		if !def.Steps[idx].CanRollback() {
			return inst, fmt.Errorf("cannot cancel instance %s: step %q: %w", id, def.Steps[idx].Name, api.ErrRollbackNotSupported)
		}
	}

	grp := e.history.Begin(def.Name, inst.ID)

	// Unwind the whole stack. unwindTo with target -1 never matches an
	// executed index, so it pops everything.
	if err := e.unwindTo(ctx, def, inst, -1, grp); err != nil {
		_ = grp.Commit(ctx)
		return inst, err
	}

	inst.Status = api.StatusRolledBack
	inst.Err = nil
	inst.CurrentStep = 0
	inst.AwaitingParams = nil

	if err := e.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	_ = grp.Commit(ctx)

	return inst, nil
}

// unwindTo pops the rollback stack, invoking each step's RollbackFunc, until
// the target step (inclusive) has been undone. target == -1 unwinds the full
// stack. A rollback error aborts the chain, leaving the instance FAILED with
// the remaining stack intact.
func (e *engineImpl) unwindTo(ctx context.Context, def api.ProcessDefinition, inst *api.ProcessInstance, target int, grp *history.Group) error {
	if inst.Params == nil {
		inst.Params = make(map[string]any)
	}
	state := api.NewState(inst.Params)

	for len(inst.Executed) > 0 {
		idx := inst.Executed[len(inst.Executed)-1]
		step := def.Steps[idx]

		if step.Rollback == nil {
			return fmt.Errorf("step %q: %w", step.Name, api.ErrRollbackNotSupported)
		}

		err := step.Rollback(ctx, state)
		e.observer.OnStepRolledBack(ctx, inst, step.Name, idx, err)
		if err != nil {
			wrapped := api.NewProcessError(def.Name, step.Name, err)
			inst.Status = api.StatusFailed
			inst.Err = wrapped
			_ = e.instances.UpdateInstance(inst)
			e.observer.OnProcessFailed(ctx, inst, wrapped)
			_ = grp.AddRecord(history.Record{
				Type:  history.TypeStepRolledBack,
				Value: fmt.Sprintf("%s: %v", step.Name, err),
			})
			return wrapped
		}

		inst.Executed = inst.Executed[:len(inst.Executed)-1]
		inst.CurrentStep = idx
		_ = grp.Add(history.TypeStepRolledBack, step.Name)
		if err := e.instances.UpdateInstance(inst); err != nil {
			return err
		}

		if idx == target {
			break
		}
	}

	return nil
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.ProcessInstance, error) {
	return e.loadInstance(id)
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.ProcessInstance, error) {
	filter := persistence.InstanceFilter{
		ProcessName: opts.ProcessName,
		Status:      opts.Status,
	}
	return e.instances.ListInstances(filter)
}

func (e *engineImpl) RecoverStuckInstances(ctx context.Context) (int, error) {
	stuck, err := e.instances.ListInstances(persistence.InstanceFilter{
		Status: api.StatusRunning,
	})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, inst := range stuck {
		inst.Status = api.StatusFailed
		inst.Err = errors.New("instance was running at startup; marked failed for recovery")
		if err := e.instances.UpdateInstance(inst); err != nil {
			return recovered, err
		}
		_ = e.history.Record(ctx, history.Record{
			Type:   history.TypeProcessFailed,
			Origin: inst.Name,
			Target: inst.ID,
			Value:  "recovered at startup",
		})
		recovered++
	}

	return recovered, nil
}

func (e *engineImpl) loadInstance(id string) (*api.ProcessInstance, error) {
	inst, err := e.instances.GetInstance(id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("instance not found: %s", id)
		}
		return nil, err
	}
	return inst, nil
}

// executeFrom runs steps from startIndex until the process completes, fails,
// or suspends awaiting interaction. grp buffers the segment's history records
// and is committed at every terminal outcome of the segment.
func (e *engineImpl) executeFrom(
	ctx context.Context,
	def api.ProcessDefinition,
	inst *api.ProcessInstance,
	startIndex int,
	grp *history.Group,
) (*api.ProcessInstance, error) {
	if inst.Params == nil {
		inst.Params = make(map[string]any)
	}
	state := api.NewState(inst.Params)

	for i := startIndex; i < len(def.Steps); i++ {
		step := def.Steps[i]

		inst.CurrentStep = i
		_ = e.instances.UpdateInstance(inst)

		maxAttempts := 1
		var (
			backoff    time.Duration
			maxBackoff time.Duration
			multiplier float64
		)

		if step.Retry != nil {
			if step.Retry.MaxAttempts > 0 {
				maxAttempts = step.Retry.MaxAttempts
			}
			backoff = step.Retry.InitialBackoff
			maxBackoff = step.Retry.MaxBackoff

			multiplier = step.Retry.BackoffMultiplier
			if multiplier <= 0 {
				multiplier = 2.0
			}
		}

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return e.failInstance(ctx, def, inst, grp, ctx.Err())
			default:
			}

			startTime := time.Now()
			e.observer.OnStepStart(ctx, inst, step.Name, i)

			err := step.Fn(ctx, state)

			duration := time.Since(startTime)

			if err == nil {
				e.observer.OnStepCompleted(ctx, inst, step.Name, i, nil, duration)
				inst.Executed = append(inst.Executed, i)
				_ = grp.Add(history.TypeStepExecuted, step.Name)
				_ = e.instances.UpdateInstance(inst)
				break
			}

			if awaiting, ok := api.IsAwaitInteractionError(err); ok {
				// Park the instance; Interact picks it up from here.
				inst.Status = api.StatusSuspended
				inst.Err = nil
				inst.AwaitingParams = awaiting
				if uerr := e.instances.UpdateInstance(inst); uerr != nil {
					return inst, uerr
				}
				e.observer.OnProcessSuspended(ctx, inst)
				_ = grp.Add(history.TypeProcessSuspended, step.Name)
				if cerr := grp.Commit(ctx); cerr != nil {
					return inst, cerr
				}
				return inst, nil
			}

			e.observer.OnStepCompleted(ctx, inst, step.Name, i, err, duration)

			if attempt == maxAttempts {
				return e.failInstance(ctx, def, inst, grp, api.NewProcessError(def.Name, step.Name, err))
			}

			if backoff > 0 {
				delay := backoff
				if maxBackoff > 0 && delay > maxBackoff {
					delay = maxBackoff
				}

				select {
				case <-ctx.Done():
					return e.failInstance(ctx, def, inst, grp, ctx.Err())
				case <-time.After(delay):
				}

				nextBackoff := time.Duration(float64(backoff) * multiplier)
				if maxBackoff > 0 && nextBackoff > maxBackoff {
					backoff = maxBackoff
				} else {
					backoff = nextBackoff
				}
			}
		}
	}

	inst.Status = api.StatusCompleted
	inst.CurrentStep = len(def.Steps)
	inst.AwaitingParams = nil
	_ = e.instances.UpdateInstance(inst)

	e.observer.OnProcessCompleted(ctx, inst)
	_ = grp.Add(history.TypeProcessCompleted, "")
	if err := grp.Commit(ctx); err != nil {
		return inst, err
	}

	return inst, nil
}

// failInstance marks the instance FAILED, notifies the observer, and commits
// the history segment with a failure record.
func (e *engineImpl) failInstance(ctx context.Context, def api.ProcessDefinition, inst *api.ProcessInstance, grp *history.Group, err error) (*api.ProcessInstance, error) {
	inst.Status = api.StatusFailed
	inst.Err = err
	_ = e.instances.UpdateInstance(inst)

	e.observer.OnProcessFailed(ctx, inst, err)
	_ = grp.Add(history.TypeProcessFailed, err.Error())
	_ = grp.Commit(ctx)

	return inst, err
}
