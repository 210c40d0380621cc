package entity

import "time"

// Critique backend identifiers
const (
	BackendMock         = "mock"
	BackendMockFallback = "mock-fallback"
)

// InitialDecision is the output of the rule-based approval policy
type InitialDecision struct {
	Approved  bool      `json:"approved"`
	Reasons   []string  `json:"reasons"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy
func (d InitialDecision) Clone() InitialDecision {
	d.Reasons = cloneStrings(d.Reasons)
	return d
}

// Critique is the advisory output of a critique backend
type Critique struct {
	Rationale      string   `json:"rationale"`
	Revised        bool     `json:"revised"`
	RevisedReasons []string `json:"revised_reasons,omitempty"`
	Backend        string   `json:"backend"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
}

// Clone returns a deep copy
func (c *Critique) Clone() *Critique {
	if c == nil {
		return nil
	}
	out := *c
	out.RevisedReasons = cloneStrings(c.RevisedReasons)
	return &out
}

// FinalDecision is the permanent audit record of one approval run.
// It is built once by the reflection controller and copied, never shared.
type FinalDecision struct {
	Approved        bool            `json:"approved"`
	DecisionPolicy  string          `json:"decision_policy"`
	Reasons         []string        `json:"reasons"`
	Summary         SeveritySummary `json:"severity_summary"`
	InitialDecision InitialDecision `json:"initial_decision"`
	Critique        *Critique       `json:"critique"`
	ReflectionState string          `json:"reflection_state"`
	RevisionApplied bool            `json:"revision_applied"`
	RevisionNote    string          `json:"revision_note,omitempty"`
	FinalTimestamp  time.Time       `json:"final_timestamp"`
}

// Clone returns a deep copy suitable for handing to another owner
func (d FinalDecision) Clone() FinalDecision {
	d.Reasons = cloneStrings(d.Reasons)
	d.Summary = d.Summary.Clone()
	d.InitialDecision = d.InitialDecision.Clone()
	d.Critique = d.Critique.Clone()
	return d
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
