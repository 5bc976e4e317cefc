// Package workflow validates entity state transitions against static
// per-kind transition tables and dispatches enter/exit hooks. It never
// persists anything; the owning entity commits the new state in the same
// logical operation.
package workflow

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"

	"projectstream/internal/model"
)

// Kind identifies the entity family a transition table belongs to.
type Kind string

const (
	KindQuote     Kind = "quote"
	KindInvoice   Kind = "invoice"
	KindOrder     Kind = "order"
	KindMilestone Kind = "milestone"
	KindProject   Kind = "project"
)

// State is an entity lifecycle state, e.g. "draft" or "in_progress".
type State string

// Hook runs on entering or leaving a state during Apply. A hook error aborts
// the transition before the new state is committed.
type Hook func(ctx context.Context, from, to State) error

// Definition is the static transition table for one entity kind, loaded once
// at process start.
type Definition struct {
	Kind        Kind
	Transitions map[State][]State
}

// Stateful is anything that carries a workflow state.
type Stateful interface {
	WorkflowState() State
	SetWorkflowState(State)
}

// Machine validates transitions for one entity kind.
type Machine struct {
	def   Definition
	enter map[State][]Hook
	exit  map[State][]Hook
}

func New(def Definition) *Machine {
	return &Machine{
		def:   def,
		enter: make(map[State][]Hook),
		exit:  make(map[State][]Hook),
	}
}

// ForKind returns a machine over the registered table for kind.
func ForKind(kind Kind) (*Machine, error) {
	def, ok := definitions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no workflow for kind %q", model.ErrNotFound, kind)
	}
	return New(def), nil
}

func (m *Machine) Kind() Kind {
	return m.def.Kind
}

// OnEnter registers a hook invoked when a transition lands on state.
func (m *Machine) OnEnter(state State, h Hook) {
	m.enter[state] = append(m.enter[state], h)
}

// OnExit registers a hook invoked when a transition leaves state.
func (m *Machine) OnExit(state State, h Hook) {
	m.exit[state] = append(m.exit[state], h)
}

// CanTransition reports whether from -> target is declared legal.
func (m *Machine) CanTransition(from, target State) bool {
	for _, next := range m.def.Transitions[from] {
		if next == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the declared successor states of from.
func (m *Machine) AllowedTargets(from State) []State {
	targets := m.def.Transitions[from]
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// Apply checks legality, runs exit hooks for the current state and enter
// hooks for the target, then commits the new state on the entity. It returns
// model.ErrInvalidTransition when the target is not in the allowed set.
func (m *Machine) Apply(ctx context.Context, entity Stateful, target State) error {
	from := entity.WorkflowState()

	fsm := m.build(entity)

	ok, err := fsm.CanFireCtx(ctx, target)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", m.def.Kind, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s cannot move %s -> %s",
			model.ErrInvalidTransition, m.def.Kind, from, target)
	}

	if err := fsm.FireCtx(ctx, target); err != nil {
		// Entry hooks run after the state is stored; restore it so a failed
		// transition leaves the entity where it was.
		entity.SetWorkflowState(from)
		return fmt.Errorf("workflow %s: transition %s -> %s: %w",
			m.def.Kind, from, target, err)
	}

	return nil
}

// build compiles the transition table into a state machine bound to the
// entity's state. Triggers are the target states themselves.
func (m *Machine) build(entity Stateful) *stateless.StateMachine {
	getState := func(_ context.Context) (any, error) {
		return entity.WorkflowState(), nil
	}
	setState := func(_ context.Context, state any) error {
		entity.SetWorkflowState(state.(State))
		return nil
	}

	fsm := stateless.NewStateMachineWithExternalStorage(getState, setState, stateless.FiringImmediate)

	for from, targets := range m.def.Transitions {
		cfg := fsm.Configure(from)
		for _, target := range targets {
			cfg.Permit(target, target)
		}

		for _, hook := range m.exit[from] {
			hook := hook
			cfg.OnExit(func(ctx context.Context, _ ...any) error {
				t := stateless.GetTransition(ctx)
				return hook(ctx, t.Source.(State), t.Destination.(State))
			})
		}
	}

	for state, hooks := range m.enter {
		cfg := fsm.Configure(state)
		for _, hook := range hooks {
			hook := hook
			cfg.OnEntry(func(ctx context.Context, _ ...any) error {
				t := stateless.GetTransition(ctx)
				return hook(ctx, t.Source.(State), t.Destination.(State))
			})
		}
	}

	return fsm
}
