package entity

import "fmt"

// Severity orders findings: INFO < WARN < ERROR
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

var severityRank = map[Severity]int{
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityError: 3,
}

// Rank returns the position of the severity in the total order, 0 if invalid
func (s Severity) Rank() int {
	return severityRank[s]
}

// IsValid returns true for the three defined severities
func (s Severity) IsValid() bool {
	return severityRank[s] > 0
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// String returns the string representation of the severity
func (s Severity) String() string {
	return string(s)
}

// FindingCode identifies the rule that produced a finding
type FindingCode string

const (
	CodeNegativeQuantity     FindingCode = "negative_quantity"
	CodeUnknownItem          FindingCode = "unknown_item"
	CodeOutOfStock           FindingCode = "out_of_stock"
	CodeQuantityExceedsStock FindingCode = "quantity_exceeds_stock"
	CodeInactiveItem         FindingCode = "inactive_item"
	CodePriceMismatch        FindingCode = "price_mismatch"
	CodeLineAmountMismatch   FindingCode = "line_item_amount_mismatch"
	CodeMissingRequiredField FindingCode = "missing_required_field"
	CodeUnknownVendor        FindingCode = "unknown_vendor"
	CodeSuspiciousVendor     FindingCode = "suspicious_vendor"
	CodeSubtotalMismatch     FindingCode = "subtotal_mismatch"
	CodeTotalMismatch        FindingCode = "total_mismatch"
	CodeSubtotalUnverifiable FindingCode = "subtotal_unverifiable"
)

// Finding is a single structured validation result
type Finding struct {
	Code         FindingCode `json:"code"`
	Severity     Severity    `json:"severity"`
	Message      string      `json:"message"`
	ItemName     string      `json:"item_name,omitempty"`
	RequestedQty *int        `json:"requested_qty,omitempty"`
	AvailableQty *int        `json:"available_qty,omitempty"`
}

// Validate rejects findings that carry an undefined severity
func (f Finding) Validate() error {
	if !f.Severity.IsValid() {
		return fmt.Errorf("%w: finding %s has invalid severity %q", ErrContractViolation, f.Code, f.Severity)
	}
	return nil
}

// SeveritySummary is the aggregate view of a finding set
type SeveritySummary struct {
	Info        int                 `json:"INFO"`
	Warn        int                 `json:"WARN"`
	Error       int                 `json:"ERROR"`
	HasBlocking bool                `json:"has_blocking"`
	ByCode      map[FindingCode]int `json:"by_code"`
}

// Count returns the number of findings with the given severity
func (s SeveritySummary) Count(sev Severity) int {
	switch sev {
	case SeverityInfo:
		return s.Info
	case SeverityWarn:
		return s.Warn
	case SeverityError:
		return s.Error
	}
	return 0
}

// Total returns the number of findings summarized
func (s SeveritySummary) Total() int {
	return s.Info + s.Warn + s.Error
}

// Clone returns a deep copy
func (s SeveritySummary) Clone() SeveritySummary {
	out := s
	if s.ByCode != nil {
		out.ByCode = make(map[FindingCode]int, len(s.ByCode))
		for k, v := range s.ByCode {
			out.ByCode[k] = v
		}
	}
	return out
}

// CloneFindings copies a finding slice including pointer fields
func CloneFindings(findings []Finding) []Finding {
	if findings == nil {
		return nil
	}
	out := make([]Finding, len(findings))
	for i, f := range findings {
		out[i] = f
		if f.RequestedQty != nil {
			out[i].RequestedQty = Int(*f.RequestedQty)
		}
		if f.AvailableQty != nil {
			out[i].AvailableQty = Int(*f.AvailableQty)
		}
	}
	return out
}
