package entity

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_Order(t *testing.T) {
	assert.True(t, SeverityError.AtLeast(SeverityWarn))
	assert.True(t, SeverityWarn.AtLeast(SeverityInfo))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarn))
	assert.Equal(t, 0, Severity("FATAL").Rank())
}

func TestSeverity_IsValid(t *testing.T) {
	tests := []struct {
		sev  Severity
		want bool
	}{
		{SeverityInfo, true},
		{SeverityWarn, true},
		{SeverityError, true},
		{Severity("warn"), false},
		{Severity(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.sev), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sev.IsValid())
		})
	}
}

func TestFinding_Validate(t *testing.T) {
	err := Finding{Code: CodeUnknownItem, Severity: "CRITICAL"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContractViolation))

	assert.NoError(t, Finding{Code: CodeUnknownItem, Severity: SeverityError}.Validate())
}

func TestLineItem_ExtendedAmount(t *testing.T) {
	amt, ok := LineItem{Quantity: 3, UnitPrice: Float(2.5)}.ExtendedAmount()
	assert.True(t, ok)
	assert.InDelta(t, 7.5, amt, 1e-9)

	amt, ok = LineItem{Quantity: 3, UnitPrice: Float(2.5), Amount: Float(8)}.ExtendedAmount()
	assert.True(t, ok)
	assert.Equal(t, 8.0, amt)

	_, ok = LineItem{Quantity: 3}.ExtendedAmount()
	assert.False(t, ok)
}

func TestInvoice_Validate(t *testing.T) {
	assert.NoError(t, (&Invoice{Amount: 0}).Validate())
	assert.ErrorIs(t, (&Invoice{Amount: -1}).Validate(), ErrContractViolation)
	assert.ErrorIs(t, (&Invoice{Amount: math.NaN()}).Validate(), ErrContractViolation)
}

func TestInvoice_HasVendor(t *testing.T) {
	assert.True(t, (&Invoice{Vendor: "Widgets Inc."}).HasVendor())
	assert.False(t, (&Invoice{Vendor: "  "}).HasVendor())
	assert.False(t, (&Invoice{Vendor: VendorUnknown}).HasVendor())
	assert.False(t, (&Invoice{Vendor: VendorParseError}).HasVendor())
}

func TestParseMetadata_MarkMissing(t *testing.T) {
	m := NewParseMetadata("a.json", "json", ConfidenceHigh)
	m.MarkMissing(FieldVendor, "vendor missing")
	m.MarkMissing(FieldVendor, "")

	assert.Equal(t, []string{FieldVendor}, m.MissingFields)
	assert.Equal(t, []string{"vendor missing"}, m.ParseWarnings)
	assert.Equal(t, ConfidenceLow, m.ConfidenceScores[FieldVendor])
	assert.True(t, m.IsMissing(FieldVendor))
	assert.False(t, m.IsMissing(FieldAmount))
}

func TestFinalDecision_CloneIsIndependent(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := FinalDecision{
		Approved:        false,
		DecisionPolicy:  "v1_rule_based",
		Reasons:         []string{"a"},
		Summary:         SeveritySummary{Error: 1, HasBlocking: true, ByCode: map[FindingCode]int{CodeUnknownItem: 1}},
		InitialDecision: InitialDecision{Reasons: []string{"a"}, Timestamp: ts},
		Critique:        &Critique{Rationale: "r", RevisedReasons: []string{"x"}, Backend: BackendMock},
		FinalTimestamp:  ts,
	}

	cp := orig.Clone()
	cp.Reasons[0] = "changed"
	cp.Summary.ByCode[CodeUnknownItem] = 9
	cp.InitialDecision.Reasons[0] = "changed"
	cp.Critique.RevisedReasons[0] = "changed"

	assert.Equal(t, "a", orig.Reasons[0])
	assert.Equal(t, 1, orig.Summary.ByCode[CodeUnknownItem])
	assert.Equal(t, "a", orig.InitialDecision.Reasons[0])
	assert.Equal(t, "x", orig.Critique.RevisedReasons[0])
}

func TestFinalDecision_JSONRoundTripKeepsEveryField(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := FinalDecision{
		Approved:        false,
		DecisionPolicy:  "v1_rule_based",
		Reasons:         []string{"blocking validation errors present: unknown_item"},
		Summary:         SeveritySummary{Error: 1, HasBlocking: true, ByCode: map[FindingCode]int{CodeUnknownItem: 1}},
		InitialDecision: InitialDecision{Approved: false, Reasons: []string{"r"}, Timestamp: ts},
		Critique:        &Critique{Rationale: "r", Revised: true, RevisedReasons: []string{"x"}, Backend: BackendMockFallback, FallbackReason: "timeout"},
		ReflectionState: "REFLECTED",
		RevisionApplied: false,
		RevisionNote:    "reversal to approve is never applied",
		FinalTimestamp:  ts,
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded FinalDecision
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}

func TestCloneFindings(t *testing.T) {
	in := []Finding{{Code: CodeQuantityExceedsStock, Severity: SeverityWarn, RequestedQty: Int(20), AvailableQty: Int(5)}}
	out := CloneFindings(in)
	*out[0].RequestedQty = 1

	assert.Equal(t, 20, *in[0].RequestedQty)
	assert.Nil(t, CloneFindings(nil))
}
