package workflow

import (
	"context"
	"fmt"
)

// GuardFunc decides whether a transition may be taken
type GuardFunc func(ctx context.Context) bool

// Builder collects transition rules and produces independent machines
type Builder struct {
	transitions map[State]map[Trigger][]transition
}

// StateConfiguration configures the transitions leaving one state
type StateConfiguration struct {
	builder *Builder
	from    State
}

type transition struct {
	to    State
	guard GuardFunc
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger][]transition)}
}

// Configure returns the configuration for state. It panics on an undefined state.
func (b *Builder) Configure(state State) *StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.transitions[state]; !ok {
		b.transitions[state] = make(map[Trigger][]transition)
	}
	return &StateConfiguration{builder: b, from: state}
}

// Permit allows trigger to move to the target state unconditionally
func (c *StateConfiguration) Permit(trigger Trigger, to State) *StateConfiguration {
	return c.PermitIf(trigger, to, nil)
}

// PermitIf allows trigger to move to the target state when guard passes.
// Candidates for the same trigger are tried in registration order.
func (c *StateConfiguration) PermitIf(trigger Trigger, to State, guard GuardFunc) *StateConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	rules := c.builder.transitions[c.from]
	rules[trigger] = append(rules[trigger], transition{to: to, guard: guard})
	return c
}

// Build creates a machine positioned at initial. Later builder changes do not
// affect machines already built.
func (b *Builder) Build(initial State) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	snapshot := make(map[State]map[Trigger][]transition, len(b.transitions))
	for state, rules := range b.transitions {
		copied := make(map[Trigger][]transition, len(rules))
		for trigger, ts := range rules {
			copied[trigger] = append([]transition(nil), ts...)
		}
		snapshot[state] = copied
	}

	return &stateMachine{current: initial, transitions: snapshot}
}

type ctxKey string

const reflectionEnabledKey ctxKey = "reflection_enabled"

// WithReflectionEnabled stores the reflection switch in ctx
func WithReflectionEnabled(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, reflectionEnabledKey, enabled)
}

func reflectionEnabled(ctx context.Context) bool {
	enabled, _ := ctx.Value(reflectionEnabledKey).(bool)
	return enabled
}

// NewApprovalMachine returns the lifecycle used for one approval run:
// PENDING -DECIDE-> DECIDED, then REFLECT (guarded) -> REFLECTED or
// SKIP_REFLECTION -> INITIAL_ONLY.
func NewApprovalMachine() StateMachine {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerDecide, StateDecided)
	b.Configure(StateDecided).
		PermitIf(TriggerReflect, StateReflected, reflectionEnabled).
		Permit(TriggerSkipReflection, StateInitialOnly)
	return b.Build(StatePending)
}
