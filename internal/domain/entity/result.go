package entity

import "time"

// PipelineResult is everything recorded for one invoice run
type PipelineResult struct {
	RunID         string           `json:"run_id"`
	InvoicePath   string           `json:"invoice_path"`
	Invoice       *Invoice         `json:"invoice"`
	Findings      []Finding        `json:"validation_findings"`
	Summary       *SeveritySummary `json:"severity_summary,omitempty"`
	Decision      *FinalDecision   `json:"approval_decision"`
	Payment       *PaymentResult   `json:"payment_result"`
	Errors        []string         `json:"errors"`
	InternalError string           `json:"internal_error,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// Failed reports whether the run ended with an internal-error record
func (r *PipelineResult) Failed() bool {
	return r.InternalError != ""
}

// Approved reports whether the run produced an approving final decision
func (r *PipelineResult) Approved() bool {
	return r.Decision != nil && r.Decision.Approved
}

// Paid reports whether payment was executed
func (r *PipelineResult) Paid() bool {
	return r.Payment != nil && r.Payment.Status == PaymentPaid
}
