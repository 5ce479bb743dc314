package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewInteraction_DuplicateParam(t *testing.T) {
	_, err := NewInteraction(
		&ParamFragment{Name: "name"},
		&ParamFragment{Name: "name"},
	)
	if err == nil {
		t.Fatal("expected error for duplicate parameter ownership")
	}
}

func TestInteraction_EnterInitializesAndSuspends(t *testing.T) {
	in := MustInteraction(
		&ParamFragment{Name: "name", Required: true},
		&ParamFragment{Name: "salutation", Default: "Hello"},
	)

	state := NewState(nil)
	err := in.Enter(context.Background(), state)

	awaiting, ok := IsAwaitInteractionError(err)
	if !ok {
		t.Fatalf("expected await-interaction error, got %v", err)
	}
	if len(awaiting) != 2 || awaiting[0] != "name" || awaiting[1] != "salutation" {
		t.Fatalf("unexpected awaited params: %v", awaiting)
	}

	// Defaults are assigned on Enter; already-set params are left alone.
	if v, _ := state.Get("salutation"); v != "Hello" {
		t.Fatalf("expected default salutation, got %v", v)
	}
	if state.Has("name") {
		t.Fatal("name has no default and must not be set")
	}

	state.Set("salutation", "Hi")
	if err := in.Enter(context.Background(), state); err == nil {
		t.Fatal("expected await-interaction error on re-enter")
	}
	if v, _ := state.Get("salutation"); v != "Hi" {
		t.Fatalf("re-enter overwrote an existing value: %v", v)
	}
}

func TestInteraction_DispatchGatesOnRequiredParams(t *testing.T) {
	in := MustInteraction(
		&ParamFragment{Name: "name", Required: true},
		&ParamFragment{Name: "note"},
	)
	ctx := context.Background()
	state := NewState(nil)

	// Updates never complete the interaction.
	done, err := in.Dispatch(ctx, state, InteractionEvent{Param: "note", Type: EventUpdate, Value: "remember this"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if done {
		t.Fatal("update event must not complete the interaction")
	}

	// An action with the required param missing keeps waiting.
	done, err = in.Dispatch(ctx, state, InteractionEvent{Param: "note", Type: EventAction})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if done {
		t.Fatal("action must not complete while required params are missing")
	}

	// An action that fills the required param completes.
	done, err = in.Dispatch(ctx, state, InteractionEvent{Param: "name", Type: EventAction, Value: "Ada"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !done {
		t.Fatal("expected interaction to complete once required params are set")
	}
	if v, _ := state.Get("name"); v != "Ada" {
		t.Fatalf("expected name to be stored, got %v", v)
	}
}

func TestInteraction_DispatchUnknownParam(t *testing.T) {
	in := MustInteraction(&ParamFragment{Name: "name"})

	_, err := in.Dispatch(context.Background(), NewState(nil), InteractionEvent{Param: "bogus", Type: EventUpdate, Value: 1})
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestParamFragment_ValidateRejectsValue(t *testing.T) {
	frag := &ParamFragment{
		Name: "quantity",
		Validate: func(v any) error {
			n, ok := v.(int)
			if !ok || n <= 0 {
				return fmt.Errorf("quantity must be a positive int, got %v", v)
			}
			return nil
		},
	}
	in := MustInteraction(frag)
	ctx := context.Background()
	state := NewState(nil)

	_, err := in.Dispatch(ctx, state, InteractionEvent{Param: "quantity", Type: EventUpdate, Value: -1})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if state.Has("quantity") {
		t.Fatal("rejected value must not be stored")
	}

	if _, err := in.Dispatch(ctx, state, InteractionEvent{Param: "quantity", Type: EventUpdate, Value: 3}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if v, _ := state.Get("quantity"); v != 3 {
		t.Fatalf("expected quantity 3, got %v", v)
	}
}

func TestParamFragment_OnEventRunsAfterStore(t *testing.T) {
	var seen any
	frag := &ParamFragment{
		Name: "item",
		OnEvent: func(ctx context.Context, state *State, ev InteractionEvent) error {
			seen, _ = state.Get("item")
			return nil
		},
	}
	in := MustInteraction(frag)

	_, err := in.Dispatch(context.Background(), NewState(nil), InteractionEvent{Param: "item", Type: EventUpdate, Value: "widget"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if seen != "widget" {
		t.Fatalf("OnEvent saw %v, want widget", seen)
	}
}

func TestInteraction_RollbackRemovesOwnedParams(t *testing.T) {
	in := MustInteraction(
		&ParamFragment{Name: "name"},
		&ParamFragment{Name: "salutation", Default: "Hello"},
	)
	ctx := context.Background()

	state := NewState(map[string]any{"unrelated": true})
	_ = in.Enter(ctx, state)
	_, _ = in.Dispatch(ctx, state, InteractionEvent{Param: "name", Type: EventUpdate, Value: "Ada"})

	if err := in.Rollback(ctx, state); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if state.Has("name") || state.Has("salutation") {
		t.Fatalf("owned params survived rollback: %v", state.Names())
	}
	if !state.Has("unrelated") {
		t.Fatal("rollback removed a parameter the interaction does not own")
	}
}

func TestFragmentGroup_NestedRouting(t *testing.T) {
	inner, err := NewFragmentGroup(
		&ParamFragment{Name: "street"},
		&ParamFragment{Name: "city", Required: true},
	)
	if err != nil {
		t.Fatalf("NewFragmentGroup failed: %v", err)
	}

	in := MustInteraction(
		&ParamFragment{Name: "name", Required: true},
		inner,
	)
	ctx := context.Background()
	state := NewState(nil)

	// Events route through the group to the owning child.
	if _, err := in.Dispatch(ctx, state, InteractionEvent{Param: "city", Type: EventUpdate, Value: "Oulu"}); err != nil {
		t.Fatalf("Dispatch to nested fragment failed: %v", err)
	}
	if v, _ := state.Get("city"); v != "Oulu" {
		t.Fatalf("nested fragment did not store value: %v", v)
	}

	// Required params of nested fragments gate completion too.
	done, err := in.Dispatch(ctx, state, InteractionEvent{Param: "name", Type: EventAction, Value: "Ada"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !done {
		t.Fatal("expected completion: name and city are both set")
	}
}
