package workflow

// State is a position in the two-pass approval lifecycle
type State string

const (
	StatePending     State = "PENDING"
	StateDecided     State = "DECIDED"
	StateReflected   State = "REFLECTED"
	StateInitialOnly State = "INITIAL_ONLY"
)

var validStates = map[State]bool{
	StatePending:     true,
	StateDecided:     true,
	StateReflected:   true,
	StateInitialOnly: true,
}

var terminalStates = map[State]bool{
	StateReflected:   true,
	StateInitialOnly: true,
}

// IsTerminal returns true if no further transitions are allowed
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a defined lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
