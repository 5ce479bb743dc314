package processo

import (
	"context"
	"errors"
	"testing"

	"github.com/petrijr/processo/pkg/api"
	"github.com/petrijr/processo/pkg/history"
)

func TestProcess_SequentialExecution(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	var order []string
	record := func(name string) StepFunc {
		return func(ctx context.Context, state *State) error {
			order = append(order, name)
			return nil
		}
	}

	New("sequence").
		Step("first", record("first")).
		Step("second", record("second")).
		Step("third", record("third")).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "sequence", map[string]any{"input": "x"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", inst.Status)
	}
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("steps ran out of order: %v", order)
	}
	if inst.CurrentStep != 3 {
		t.Fatalf("expected CurrentStep 3 after completion, got %d", inst.CurrentStep)
	}
	if len(inst.Executed) != 3 {
		t.Fatalf("expected 3 entries on the rollback stack, got %v", inst.Executed)
	}
	if inst.Params["input"] != "x" {
		t.Fatalf("start params not carried into the instance: %v", inst.Params)
	}
}

func TestProcess_ParamsFlowBetweenSteps(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("pipeline").
		Step("produce", SetParamStep("greeting", "hello")).
		Step("consume", func(ctx context.Context, state *State) error {
			greeting, err := Param[string](state, "greeting")
			if err != nil {
				return err
			}
			state.Set("shouted", greeting+"!")
			return nil
		}).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "pipeline", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Params["shouted"] != "hello!" {
		t.Fatalf("expected shouted param, got %v", inst.Params)
	}
}

func TestProcess_StepFailureMarksInstanceFailed(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	boom := errors.New("boom")
	New("failing").
		Step("ok", SetParamStep("ran", true)).
		Step("explode", func(ctx context.Context, state *State) error {
			return boom
		}).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "failing", nil)
	if err == nil {
		t.Fatal("expected Start to propagate the step error")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to unwrap to boom, got %v", err)
	}
	var perr *api.ProcessError
	if !errors.As(err, &perr) || perr.Step != "explode" {
		t.Fatalf("expected ProcessError with step context, got %v", err)
	}
	if inst.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}
	if inst.CurrentStep != 1 {
		t.Fatalf("expected CurrentStep at the failed step, got %d", inst.CurrentStep)
	}
}

func TestProcess_RetryPolicy(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	attempts := 0
	New("flaky").
		StepWithRetry("unstable", func(ctx context.Context, state *State) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		}, Retry(3).Immediate().Policy()).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "flaky", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after retries, got %s", inst.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestProcess_RetryExhaustionFails(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	attempts := 0
	New("hopeless").
		StepWithRetry("always-fails", func(ctx context.Context, state *State) error {
			attempts++
			return errors.New("permanent")
		}, Retry(2).Immediate().Policy()).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "hopeless", nil)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if inst.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestProcess_SuspendAndInteract(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	composed := ""
	New("greeting").
		Interactive("askName",
			&ParamFragment{Name: "name", Required: true},
			&ParamFragment{Name: "salutation", Default: "Hello"},
		).
		Step("compose", func(ctx context.Context, state *State) error {
			name, err := Param[string](state, "name")
			if err != nil {
				return err
			}
			composed = ParamOr(state, "salutation", "Hello") + ", " + name + "!"
			return nil
		}).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "greeting", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != StatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", inst.Status)
	}
	if len(inst.AwaitingParams) != 2 {
		t.Fatalf("unexpected awaiting params: %v", inst.AwaitingParams)
	}
	if inst.Params["salutation"] != "Hello" {
		t.Fatalf("expected default salutation on suspension, got %v", inst.Params)
	}

	// An update buffers the value but the instance stays suspended.
	inst, err = Update(ctx, eng, inst.ID, "salutation", "Hi")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if inst.Status != StatusSuspended {
		t.Fatalf("update must not resume the process, got %s", inst.Status)
	}

	// An action with the required param missing keeps waiting.
	inst, err = Interact(ctx, eng, inst.ID, InteractionEvent{Param: "salutation", Type: EventAction})
	if err != nil {
		t.Fatalf("Interact failed: %v", err)
	}
	if inst.Status != StatusSuspended {
		t.Fatalf("incomplete action must not resume the process, got %s", inst.Status)
	}

	// The completing action resumes and runs the remaining steps.
	inst, err = Action(ctx, eng, inst.ID, "name", "Ada")
	if err != nil {
		t.Fatalf("Action failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", inst.Status)
	}
	if composed != "Hi, Ada!" {
		t.Fatalf("unexpected composed greeting: %q", composed)
	}
	if len(inst.AwaitingParams) != 0 {
		t.Fatalf("awaiting params must be cleared, got %v", inst.AwaitingParams)
	}
	// The interactive step is on the rollback stack alongside compose.
	if len(inst.Executed) != 2 || inst.Executed[0] != 0 || inst.Executed[1] != 1 {
		t.Fatalf("unexpected rollback stack: %v", inst.Executed)
	}
}

func TestProcess_InteractErrors(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("plain").
		Step("only", SetParamStep("done", true)).
		MustRegister(eng)
	New("ask").
		Interactive("input", &ParamFragment{Name: "name", Required: true}).
		MustRegister(eng)

	done, err := Start(ctx, eng, "plain", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := Update(ctx, eng, done.ID, "x", 1); !errors.Is(err, api.ErrNotSuspended) {
		t.Fatalf("expected ErrNotSuspended, got %v", err)
	}

	waiting, err := Start(ctx, eng, "ask", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := Update(ctx, eng, waiting.ID, "bogus", 1); !errors.Is(err, api.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}

	// A rejected event leaves the instance suspended and intact.
	got, err := GetInstance(ctx, eng, waiting.ID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Status != StatusSuspended {
		t.Fatalf("expected instance still SUSPENDED, got %s", got.Status)
	}
}

func TestProcess_RollbackToAndReExecute(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	var trail []string
	step := func(name string) StepFunc {
		return func(ctx context.Context, state *State) error {
			trail = append(trail, "run:"+name)
			state.Set(name, true)
			return nil
		}
	}
	undo := func(name string) RollbackFunc {
		return func(ctx context.Context, state *State) error {
			trail = append(trail, "undo:"+name)
			state.Delete(name)
			return nil
		}
	}

	New("journey").
		StepWithRollback("reserve", step("reserve"), undo("reserve")).
		StepWithRollback("charge", step("charge"), undo("charge")).
		StepWithRollback("notify", step("notify"), undo("notify")).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "journey", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ok, err := CanRollbackTo(ctx, eng, inst.ID, "charge")
	if err != nil || !ok {
		t.Fatalf("expected rollback to charge to be possible, got ok=%v err=%v", ok, err)
	}

	trail = nil
	inst, err = RollbackTo(ctx, eng, inst.ID, "charge")
	if err != nil {
		t.Fatalf("RollbackTo failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after re-execution, got %s", inst.Status)
	}

	// Undo walks backward to the target, then execution resumes forward.
	want := []string{"undo:notify", "undo:charge", "run:charge", "run:notify"}
	if len(trail) != len(want) {
		t.Fatalf("unexpected trail: %v", trail)
	}
	for i := range want {
		if trail[i] != want[i] {
			t.Fatalf("trail[%d] = %s, want %s", i, trail[i], want[i])
		}
	}
	if len(inst.Executed) != 3 {
		t.Fatalf("expected full rollback stack after re-execution, got %v", inst.Executed)
	}
}

func TestProcess_RollbackBlockedByUnsupportedStep(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("one-way").
		StepWithRollback("a", SetParamStep("a", true), RollbackFunc(DeleteParamStep("a"))).
		Step("b", SetParamStep("b", true)). // no rollback
		StepWithRollback("c", SetParamStep("c", true), RollbackFunc(DeleteParamStep("c"))).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "one-way", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Rolling back to "a" would have to cross "b", which cannot be undone.
	ok, err := CanRollbackTo(ctx, eng, inst.ID, "a")
	if err != nil {
		t.Fatalf("CanRollbackTo failed: %v", err)
	}
	if ok {
		t.Fatal("expected rollback across a non-rollbackable step to be refused")
	}

	if _, err := RollbackTo(ctx, eng, inst.ID, "a"); !errors.Is(err, api.ErrRollbackNotSupported) {
		t.Fatalf("expected ErrRollbackNotSupported, got %v", err)
	}

	// Rolling back to "c" does not cross "b" and is fine.
	ok, err = CanRollbackTo(ctx, eng, inst.ID, "c")
	if err != nil || !ok {
		t.Fatalf("expected rollback to c to be possible, got ok=%v err=%v", ok, err)
	}
}

func TestProcess_RollbackErrorAbortsChain(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	undoBoom := errors.New("undo failed")
	New("fragile").
		StepWithRollback("a", SetParamStep("a", true), RollbackFunc(DeleteParamStep("a"))).
		StepWithRollback("b", SetParamStep("b", true), func(ctx context.Context, state *State) error {
			return undoBoom
		}).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "fragile", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = RollbackTo(ctx, eng, inst.ID, "a")
	if !errors.Is(err, undoBoom) {
		t.Fatalf("expected rollback error to propagate, got %v", err)
	}

	got, err := GetInstance(ctx, eng, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected FAILED after rollback error, got %s", got.Status)
	}
	// The failed step and everything below it stay on the stack.
	if len(got.Executed) != 2 {
		t.Fatalf("expected rollback stack intact, got %v", got.Executed)
	}
}

func TestProcess_CancelRollsBackEverything(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("cancellable").
		StepWithRollback("a", SetParamStep("a", true), RollbackFunc(DeleteParamStep("a"))).
		StepWithRollback("b", SetParamStep("b", true), RollbackFunc(DeleteParamStep("b"))).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "cancellable", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	inst, err = Cancel(ctx, eng, inst.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if inst.Status != StatusRolledBack {
		t.Fatalf("expected ROLLED_BACK, got %s", inst.Status)
	}
	if len(inst.Executed) != 0 {
		t.Fatalf("expected empty rollback stack, got %v", inst.Executed)
	}
	if _, ok := inst.Params["a"]; ok {
		t.Fatalf("expected rollback to remove params, got %v", inst.Params)
	}
}

func TestProcess_ResumeAfterFailure(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	failOnce := true
	New("recoverable").
		Step("prepare", SetParamStep("prepared", true)).
		Step("unreliable", func(ctx context.Context, state *State) error {
			if failOnce {
				failOnce = false
				return errors.New("first attempt fails")
			}
			state.Set("finished", true)
			return nil
		}).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "recoverable", nil)
	if err == nil {
		t.Fatal("expected first run to fail")
	}
	if inst.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}

	inst, err = Resume(ctx, eng, inst.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after resume, got %s", inst.Status)
	}
	if inst.Params["prepared"] != true || inst.Params["finished"] != true {
		t.Fatalf("params lost across resume: %v", inst.Params)
	}

	// Resume only applies to failed instances.
	if _, err := Resume(ctx, eng, inst.ID); err == nil {
		t.Fatal("expected error resuming a completed instance")
	}
}

func TestProcess_RollbackToInteractiveStepResuspends(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("form").
		Interactive("askName", &ParamFragment{Name: "name", Required: true}).
		StepWithRollback("store", SetParamStep("stored", true), RollbackFunc(DeleteParamStep("stored"))).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "form", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	inst, err = Action(ctx, eng, inst.ID, "name", "Ada")
	if err != nil {
		t.Fatalf("Action failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", inst.Status)
	}

	// Back navigation: undo "store" and the interaction, re-enter the form.
	inst, err = RollbackTo(ctx, eng, inst.ID, "askName")
	if err != nil {
		t.Fatalf("RollbackTo failed: %v", err)
	}
	if inst.Status != StatusSuspended {
		t.Fatalf("expected re-entered interaction to suspend, got %s", inst.Status)
	}
	if _, ok := inst.Params["name"]; ok {
		t.Fatalf("expected interaction rollback to clear collected input, got %v", inst.Params)
	}

	// The user can answer again and complete the process a second time.
	inst, err = Action(ctx, eng, inst.ID, "name", "Grace")
	if err != nil {
		t.Fatalf("second Action failed: %v", err)
	}
	if inst.Status != StatusCompleted || inst.Params["name"] != "Grace" {
		t.Fatalf("unexpected final state: %s %v", inst.Status, inst.Params)
	}
}

func TestProcess_ListInstancesAndHistory(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("audited").
		Step("only", SetParamStep("done", true)).
		MustRegister(eng)

	first, err := Start(ctx, eng, "audited", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := Start(ctx, eng, "audited", nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	all, err := ListInstances(ctx, eng, InstanceListOptions{ProcessName: "audited"})
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(all))
	}

	completed, err := ListInstances(ctx, eng, InstanceListOptions{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ListInstances by status failed: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected 2 completed instances, got %d", len(completed))
	}

	recs, err := ListHistory(ctx, eng, first.ID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected started/executed/completed records, got %+v", recs)
	}
	if recs[0].Type != history.TypeProcessStarted || recs[len(recs)-1].Type != history.TypeProcessCompleted {
		t.Fatalf("unexpected record sequence: %+v", recs)
	}
}

func TestProcess_AwaitParamsStepResumesOnEvents(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("survey").
		Step("collect", AwaitParamsStep("answer", "rating")).
		Step("tally", RequireParamsStep("answer", "rating")).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "survey", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != StatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", inst.Status)
	}
	if len(inst.AwaitingParams) != 2 {
		t.Fatalf("expected both parameters awaited, got %v", inst.AwaitingParams)
	}

	// An event for a parameter the step is not waiting on is rejected.
	if _, err := Update(ctx, eng, inst.ID, "bogus", 1); !errors.Is(err, api.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}

	// The first answer re-enters the step, which still misses "rating".
	inst, err = Update(ctx, eng, inst.ID, "answer", 42)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if inst.Status != StatusSuspended {
		t.Fatalf("expected re-suspension with input missing, got %s", inst.Status)
	}
	if len(inst.AwaitingParams) != 1 || inst.AwaitingParams[0] != "rating" {
		t.Fatalf("expected only rating awaited, got %v", inst.AwaitingParams)
	}

	// The last answer lets the step pass and the process run to the end.
	inst, err = Update(ctx, eng, inst.ID, "rating", 5)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if inst.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", inst.Status)
	}
	if inst.Params["answer"] != 42 || inst.Params["rating"] != 5 {
		t.Fatalf("collected parameters lost: %v", inst.Params)
	}
	if len(inst.Executed) != 2 {
		t.Fatalf("expected both steps on the rollback stack, got %v", inst.Executed)
	}
}

func TestProcess_CancelRefusedAcrossNonRollbackableStep(t *testing.T) {
	eng := NewInMemoryEngine()
	ctx := context.Background()

	New("anchored").
		Step("keep", SetParamStep("kept", true)). // no rollback
		StepWithRollback("undoable", SetParamStep("undone", false), RollbackFunc(DeleteParamStep("undone"))).
		MustRegister(eng)

	inst, err := Start(ctx, eng, "anchored", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := Cancel(ctx, eng, inst.ID); !errors.Is(err, api.ErrRollbackNotSupported) {
		t.Fatalf("expected ErrRollbackNotSupported, got %v", err)
	}

	// The refusal must leave the instance untouched: nothing above the
	// non-rollbackable step may have been undone.
	got, err := GetInstance(ctx, eng, inst.ID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after refused cancel, got %s", got.Status)
	}
	if len(got.Executed) != 2 {
		t.Fatalf("expected rollback stack intact, got %v", got.Executed)
	}
	if _, ok := got.Params["undone"]; !ok {
		t.Fatalf("refused cancel must not undo any step, got %v", got.Params)
	}
}

func TestProcess_StartUnknownProcess(t *testing.T) {
	eng := NewInMemoryEngine()

	if _, err := Start(context.Background(), eng, "never-registered", nil); err == nil {
		t.Fatal("expected error starting an unregistered process")
	}
}
