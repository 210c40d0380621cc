package entity

import (
	"fmt"
	"math"
	"strings"
)

// Confidence is the provenance confidence tag attached to parsed fields
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Vendor placeholders written by ingestion when the vendor could not be read
const (
	VendorUnknown    = "Unknown"
	VendorParseError = "PARSE_ERROR"
)

// DefaultCurrency is used when a document does not state one
const DefaultCurrency = "USD"

// Field names used in provenance maps
const (
	FieldVendor        = "vendor"
	FieldAmount        = "amount"
	FieldLineItems     = "line_items"
	FieldDueDate       = "due_date"
	FieldInvoiceNumber = "invoice_number"
	FieldSubtotal      = "subtotal"
	FieldTaxAmount     = "tax_amount"
	FieldPaymentTerms  = "payment_terms"
)

// LineItem is one billed line of an invoice. Quantity may be negative.
type LineItem struct {
	Item      string   `json:"item"`
	Quantity  int      `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
}

// ExtendedAmount returns the stated line amount, or quantity x unit price
// when only the unit price is known.
func (l LineItem) ExtendedAmount() (float64, bool) {
	if l.Amount != nil {
		return *l.Amount, true
	}
	if l.UnitPrice != nil {
		return float64(l.Quantity) * *l.UnitPrice, true
	}
	return 0, false
}

// ParseMetadata records how each invoice field was obtained
type ParseMetadata struct {
	SourcePath       string                `json:"source_path,omitempty"`
	SourceFormat     string                `json:"source_format,omitempty"`
	Confidence       Confidence            `json:"confidence"`
	ParseWarnings    []string              `json:"parse_warnings"`
	FieldProvenance  map[string]string     `json:"field_provenance"`
	ConfidenceScores map[string]Confidence `json:"confidence_scores"`
	MissingFields    []string              `json:"missing_fields"`
}

// NewParseMetadata returns metadata with initialized collections
func NewParseMetadata(path, format string, confidence Confidence) ParseMetadata {
	return ParseMetadata{
		SourcePath:       path,
		SourceFormat:     format,
		Confidence:       confidence,
		ParseWarnings:    []string{},
		FieldProvenance:  map[string]string{},
		ConfidenceScores: map[string]Confidence{},
		MissingFields:    []string{},
	}
}

// Record notes where a field came from and how confident the parser is
func (m *ParseMetadata) Record(field, provenance string, confidence Confidence) {
	if m.FieldProvenance == nil {
		m.FieldProvenance = map[string]string{}
	}
	if m.ConfidenceScores == nil {
		m.ConfidenceScores = map[string]Confidence{}
	}
	m.FieldProvenance[field] = provenance
	m.ConfidenceScores[field] = confidence
}

// MarkMissing records a required field that could not be extracted
func (m *ParseMetadata) MarkMissing(field, warning string) {
	if !m.IsMissing(field) {
		m.MissingFields = append(m.MissingFields, field)
	}
	if warning != "" {
		m.ParseWarnings = append(m.ParseWarnings, warning)
	}
	m.Record(field, "missing", ConfidenceLow)
}

// Warn appends a parse warning
func (m *ParseMetadata) Warn(format string, args ...interface{}) {
	m.ParseWarnings = append(m.ParseWarnings, fmt.Sprintf(format, args...))
}

// IsMissing reports whether field was marked missing during parsing
func (m ParseMetadata) IsMissing(field string) bool {
	for _, f := range m.MissingFields {
		if f == field {
			return true
		}
	}
	return false
}

// Invoice is the normalized document handed to validation.
// It is treated as immutable once ingestion returns it.
type Invoice struct {
	Vendor        string        `json:"vendor"`
	Amount        float64       `json:"amount"`
	LineItems     []LineItem    `json:"line_items"`
	DueDate       string        `json:"due_date,omitempty"`
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	VendorAddress string        `json:"vendor_address,omitempty"`
	Subtotal      *float64      `json:"subtotal,omitempty"`
	TaxRate       *float64      `json:"tax_rate,omitempty"`
	TaxAmount     *float64      `json:"tax_amount,omitempty"`
	Currency      string        `json:"currency"`
	PaymentTerms  string        `json:"payment_terms,omitempty"`
	Provenance    ParseMetadata `json:"provenance"`
}

// HasVendor reports whether the vendor name is usable for lookups
func (i *Invoice) HasVendor() bool {
	v := strings.TrimSpace(i.Vendor)
	return v != "" && v != VendorUnknown && v != VendorParseError
}

// Validate checks the structural invariants every invoice must satisfy
func (i *Invoice) Validate() error {
	if math.IsNaN(i.Amount) || math.IsInf(i.Amount, 0) {
		return fmt.Errorf("%w: invoice amount is not a finite number", ErrContractViolation)
	}
	if i.Amount < 0 {
		return fmt.Errorf("%w: invoice amount %.2f is negative", ErrContractViolation, i.Amount)
	}
	return nil
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}
