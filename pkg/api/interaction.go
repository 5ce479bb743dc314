package api

import (
	"context"
	"fmt"
	"sort"
)

// InteractionEventType classifies an interaction event.
type InteractionEventType string

const (
	// EventUpdate carries a new value for a parameter. Updates never
	// complete an interaction on their own; the process stays suspended.
	EventUpdate InteractionEventType = "UPDATE"

	// EventAction signals a user action on a parameter (a button press,
	// a selection confirm). An action may complete the interaction if all
	// required parameters are filled.
	EventAction InteractionEventType = "ACTION"
)

// InteractionEvent is a single piece of user input delivered to a suspended
// process. Param names the parameter that triggered the event; the event is
// dispatched to the fragment that registered interest in that parameter.
type InteractionEvent struct {
	Param string
	Type  InteractionEventType
	Value any
}

// InteractionFragment is a composable, nestable unit of interaction logic.
// A fragment owns a set of parameters, initializes them when its interaction
// is first entered, and handles the events triggered by them.
type InteractionFragment interface {
	// Params returns the names of the parameters this fragment owns.
	Params() []string

	// Init prepares the fragment's parameters when the interaction is
	// entered. It must be idempotent: the interaction step may be
	// re-entered after a rollback.
	Init(ctx context.Context, state *State) error

	// HandleEvent processes an event for one of the fragment's parameters.
	HandleEvent(ctx context.Context, state *State, ev InteractionEvent) error
}

// requiredParams is implemented by fragments that gate interaction
// completion on certain parameters being set.
type requiredParams interface {
	RequiredParams() []string
}

// ParamFragment is the basic fragment: it owns a single parameter.
type ParamFragment struct {
	// Name of the owned parameter.
	Name string

	// Required gates interaction completion on this parameter being set.
	Required bool

	// Default, if non-nil, is assigned on Init when the parameter is not
	// already set.
	Default any

	// Validate, if non-nil, checks incoming values before they are stored.
	// A validation error leaves the parameter unchanged.
	Validate func(value any) error

	// OnEvent, if non-nil, runs after the event value has been stored.
	OnEvent func(ctx context.Context, state *State, ev InteractionEvent) error
}

var _ InteractionFragment = (*ParamFragment)(nil)

func (f *ParamFragment) Params() []string {
	return []string{f.Name}
}

func (f *ParamFragment) RequiredParams() []string {
	if f.Required {
		return []string{f.Name}
	}
	return nil
}

func (f *ParamFragment) Init(ctx context.Context, state *State) error {
	if f.Default != nil && !state.Has(f.Name) {
		state.Set(f.Name, f.Default)
	}
	return nil
}

func (f *ParamFragment) HandleEvent(ctx context.Context, state *State, ev InteractionEvent) error {
	if ev.Value != nil {
		if f.Validate != nil {
			if err := f.Validate(ev.Value); err != nil {
				return fmt.Errorf("invalid value for parameter %q: %w", f.Name, err)
			}
		}
		state.Set(f.Name, ev.Value)
	}
	if f.OnEvent != nil {
		return f.OnEvent(ctx, state, ev)
	}
	return nil
}

// FragmentGroup composes child fragments into one nestable unit. Events are
// routed to the child that owns the triggering parameter.
type FragmentGroup struct {
	children []InteractionFragment
	byParam  map[string]InteractionFragment
}

var _ InteractionFragment = (*FragmentGroup)(nil)

// NewFragmentGroup builds a group from child fragments. It errors if two
// children claim the same parameter.
func NewFragmentGroup(children ...InteractionFragment) (*FragmentGroup, error) {
	byParam := make(map[string]InteractionFragment)
	for _, c := range children {
		for _, p := range c.Params() {
			if _, dup := byParam[p]; dup {
				return nil, fmt.Errorf("parameter %q owned by more than one fragment", p)
			}
			byParam[p] = c
		}
	}
	return &FragmentGroup{children: children, byParam: byParam}, nil
}

func (g *FragmentGroup) Params() []string {
	params := make([]string, 0, len(g.byParam))
	for p := range g.byParam {
		params = append(params, p)
	}
	sort.Strings(params)
	return params
}

func (g *FragmentGroup) RequiredParams() []string {
	var req []string
	for _, c := range g.children {
		if r, ok := c.(requiredParams); ok {
			req = append(req, r.RequiredParams()...)
		}
	}
	return req
}

func (g *FragmentGroup) Init(ctx context.Context, state *State) error {
	for _, c := range g.children {
		if err := c.Init(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (g *FragmentGroup) HandleEvent(ctx context.Context, state *State, ev InteractionEvent) error {
	c, ok := g.byParam[ev.Param]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, ev.Param)
	}
	return c.HandleEvent(ctx, state, ev)
}

// Interaction is a rollback-capable process step that aggregates interaction
// fragments. Entering the step initializes the fragments and suspends the
// process; delivered events are forwarded to the fragment whose parameter
// triggered them. An action event completes the interaction once all
// required parameters are set; otherwise the process keeps waiting.
type Interaction struct {
	root *FragmentGroup
}

// NewInteraction builds an interaction over the given fragments. It errors
// if two fragments claim the same parameter.
func NewInteraction(fragments ...InteractionFragment) (*Interaction, error) {
	root, err := NewFragmentGroup(fragments...)
	if err != nil {
		return nil, err
	}
	return &Interaction{root: root}, nil
}

// MustInteraction is like NewInteraction but panics on error. Useful for
// process definitions built at init time.
func MustInteraction(fragments ...InteractionFragment) *Interaction {
	in, err := NewInteraction(fragments...)
	if err != nil {
		panic(err)
	}
	return in
}

// Params returns the parameters owned by the interaction's fragments.
func (i *Interaction) Params() []string {
	return i.root.Params()
}

// Enter initializes the fragments and requests suspension. It is the
// StepFunc of the interactive step.
func (i *Interaction) Enter(ctx context.Context, state *State) error {
	if err := i.root.Init(ctx, state); err != nil {
		return err
	}
	return NewAwaitInteractionError(i.root.Params()...)
}

// Dispatch routes one event to the owning fragment and decides whether the
// interaction is finished. done == true means the process should proceed to
// the next step; done == false means it keeps waiting for input.
func (i *Interaction) Dispatch(ctx context.Context, state *State, ev InteractionEvent) (done bool, err error) {
	if err := i.root.HandleEvent(ctx, state, ev); err != nil {
		return false, err
	}
	if ev.Type != EventAction {
		return false, nil
	}
	for _, p := range i.root.RequiredParams() {
		if !state.Has(p) {
			return false, nil
		}
	}
	return true, nil
}

// Rollback removes the parameters owned by the interaction, undoing the
// input collected from the user. It is the default RollbackFunc of the
// interactive step.
func (i *Interaction) Rollback(ctx context.Context, state *State) error {
	for _, p := range i.root.Params() {
		state.Delete(p)
	}
	return nil
}
