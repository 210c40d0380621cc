package event

// Type identifies a pipeline stage event
type Type string

const (
	TypeInvoiceParsed      Type = "ingest.parsed"
	TypeFindingsProduced   Type = "validation.findings"
	TypeInitialDecision    Type = "approval.initial_decision"
	TypeReflectionComplete Type = "approval.reflection"
	TypeFinalDecision      Type = "approval.final_decision"
	TypePaymentProcessed   Type = "payment.processed"
	TypeRunCompleted       Type = "pipeline.completed"
	TypeRunFailed          Type = "pipeline.failed"
)

// AllTypes lists every defined event type in pipeline order
var AllTypes = []Type{
	TypeInvoiceParsed,
	TypeFindingsProduced,
	TypeInitialDecision,
	TypeReflectionComplete,
	TypeFinalDecision,
	TypePaymentProcessed,
	TypeRunCompleted,
	TypeRunFailed,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}
