package workflow

// Trigger is an event that moves the approval lifecycle forward
type Trigger string

const (
	TriggerDecide         Trigger = "DECIDE"
	TriggerReflect        Trigger = "REFLECT"
	TriggerSkipReflection Trigger = "SKIP_REFLECTION"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
