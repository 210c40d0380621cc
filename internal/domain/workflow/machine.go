package workflow

import (
	"context"
	"fmt"
)

// Transition is one recorded state change
type Transition struct {
	From    State   `json:"from"`
	To      State   `json:"to"`
	Trigger Trigger `json:"trigger"`
}

// StateMachine tracks the current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the first target whose guard passes
	Fire(ctx context.Context, trigger Trigger) error

	// History returns the transitions fired so far, oldest first
	History() []Transition
}

type stateMachine struct {
	current     State
	transitions map[State]map[Trigger][]transition
	history     []Transition
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.transitions[m.current][trigger]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	if m.current.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, m.current)
	}

	candidates := m.transitions[m.current][trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.guard == nil || t.guard(ctx) {
			m.history = append(m.history, Transition{From: m.current, To: t.to, Trigger: trigger})
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}

func (m *stateMachine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
