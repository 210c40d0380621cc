package entity

import "time"

// PaymentStatus is the outcome of a payment gate call
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "PAID"
	PaymentSkipped PaymentStatus = "SKIPPED"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentResult records what the payment gate did for one invoice
type PaymentResult struct {
	Status      PaymentStatus `json:"status"`
	Vendor      string        `json:"vendor"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	ReferenceID string        `json:"payment_reference_id,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Reason      string        `json:"reason,omitempty"`
	Duplicate   bool          `json:"duplicate,omitempty"`
}
