package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

type mockSnapshot struct {
	items   map[string]entity.InventoryRecord
	vendors map[string]entity.VendorRecord
}

func (m *mockSnapshot) LookupItem(name string) (entity.InventoryRecord, bool) {
	rec, ok := m.items[name]
	return rec, ok
}

func (m *mockSnapshot) LookupVendor(name string) (entity.VendorRecord, bool) {
	rec, ok := m.vendors[name]
	return rec, ok
}

func testSnapshot() *mockSnapshot {
	return &mockSnapshot{
		items: map[string]entity.InventoryRecord{
			"WidgetA":  {Item: "WidgetA", Stock: 15, UnitPrice: 250, Active: true},
			"WidgetB":  {Item: "WidgetB", Stock: 10, UnitPrice: 500, Active: true},
			"GadgetX":  {Item: "GadgetX", Stock: 5, UnitPrice: 400, Active: true},
			"FakeItem": {Item: "FakeItem", Stock: 0, UnitPrice: 0, Active: false},
		},
		vendors: map[string]entity.VendorRecord{
			"Widgets Inc.":      {Name: "Widgets Inc.", Trusted: true, PaymentTerms: "Net 15"},
			"NoProd Industries": {Name: "NoProd Industries", Trusted: false, PaymentTerms: "Net 30"},
		},
	}
}

func line(item string, qty int, price float64) entity.LineItem {
	return entity.LineItem{Item: item, Quantity: qty, UnitPrice: entity.Float(price)}
}

func codes(findings []entity.Finding) []entity.FindingCode {
	out := make([]entity.FindingCode, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func newEngine() *Engine {
	return NewEngine(DefaultConfig())
}

func TestEvaluate_CleanInvoiceHasNoFindings(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    3000,
		LineItems: []entity.LineItem{line("WidgetA", 4, 250), line("WidgetB", 4, 500)},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Empty(t, findings)
}

func TestEvaluate_NegativeQuantityAlwaysFlagged(t *testing.T) {
	tests := []struct {
		name string
		inv  *entity.Invoice
	}{
		{"known item", &entity.Invoice{Vendor: "Widgets Inc.", LineItems: []entity.LineItem{line("WidgetA", -1, 250)}}},
		{"unknown item", &entity.Invoice{Vendor: "Widgets Inc.", LineItems: []entity.LineItem{line("Nope", -3, 1)}}},
		{"out of stock item", &entity.Invoice{Vendor: "", LineItems: []entity.LineItem{{Item: "FakeItem", Quantity: -2}}}},
		{"second line", &entity.Invoice{Vendor: "Acme", LineItems: []entity.LineItem{line("WidgetA", 1, 250), line("GadgetX", -7, 400)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := newEngine().Evaluate(tt.inv, testSnapshot())
			var found bool
			for _, f := range findings {
				if f.Code == entity.CodeNegativeQuantity {
					found = true
					assert.Equal(t, entity.SeverityError, f.Severity)
				}
			}
			assert.True(t, found)
		})
	}
}

func TestEvaluate_ScenarioA_QuantityExceedsStock(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    8000,
		LineItems: []entity.LineItem{line("GadgetX", 20, 400)},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, entity.CodeQuantityExceedsStock, f.Code)
	assert.Equal(t, entity.SeverityWarn, f.Severity)
	assert.Equal(t, "GadgetX", f.ItemName)
	assert.Equal(t, 20, *f.RequestedQty)
	assert.Equal(t, 5, *f.AvailableQty)
}

func TestEvaluate_UnknownItemSkipsStockRules(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    100,
		LineItems: []entity.LineItem{line("GadgetY", 500, 1)},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeUnknownItem}, codes(findings))
	assert.Equal(t, entity.SeverityError, findings[0].Severity)
}

func TestEvaluate_UnknownAndNegativeEmitsBoth(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		LineItems: []entity.LineItem{{Item: "Mystery", Quantity: -1}},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeUnknownItem, entity.CodeNegativeQuantity}, codes(findings))
}

func TestEvaluate_OutOfStockDoesNotAlsoExceedStock(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		LineItems: []entity.LineItem{{Item: "FakeItem", Quantity: 3}},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeOutOfStock, entity.CodeInactiveItem}, codes(findings))
}

func TestEvaluate_ScenarioD_NegativeQuantityAndUntrustedVendor(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "NoProd Industries",
		Amount:    250,
		LineItems: []entity.LineItem{line("WidgetA", -1, 250)},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeNegativeQuantity, entity.CodeSuspiciousVendor}, codes(findings))
	assert.Equal(t, entity.SeverityWarn, findings[1].Severity)
}

func TestEvaluate_PriceTolerance(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  bool
	}{
		{"exact", 250, false},
		{"within a cent", 250.009, false},
		{"within relative band", 251.2, false},
		{"outside band", 252, true},
		{"far off", 300, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &entity.Invoice{Vendor: "Widgets Inc.", LineItems: []entity.LineItem{line("WidgetA", 1, tt.price)}}
			findings := newEngine().Evaluate(inv, testSnapshot())
			assert.Equal(t, tt.want, len(findings) == 1 && findings[0].Code == entity.CodePriceMismatch)
		})
	}
}

func TestEvaluate_LineAmountMismatch(t *testing.T) {
	li := line("WidgetA", 2, 250)
	li.Amount = entity.Float(600)
	inv := &entity.Invoice{Vendor: "Widgets Inc.", LineItems: []entity.LineItem{li}}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeLineAmountMismatch}, codes(findings))

	li.Amount = entity.Float(500)
	inv.LineItems = []entity.LineItem{li}
	assert.Empty(t, newEngine().Evaluate(inv, testSnapshot()))
}

func TestEvaluate_MissingVendorSkipsVendorRules(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    entity.VendorUnknown,
		Amount:    250,
		LineItems: []entity.LineItem{line("WidgetA", 1, 250)},
	}
	inv.Provenance.MarkMissing(entity.FieldVendor, "vendor missing")

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeMissingRequiredField}, codes(findings))
	assert.Equal(t, entity.SeverityError, findings[0].Severity)
}

func TestEvaluate_MissingAmountFlagged(t *testing.T) {
	inv := &entity.Invoice{Vendor: "Widgets Inc.", LineItems: []entity.LineItem{line("WidgetA", 1, 250)}}
	inv.Provenance.MarkMissing(entity.FieldAmount, "total missing")

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeMissingRequiredField}, codes(findings))
}

func TestEvaluate_UnknownVendor(t *testing.T) {
	inv := &entity.Invoice{Vendor: "Shadow Corp", Amount: 250, LineItems: []entity.LineItem{line("WidgetA", 1, 250)}}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeUnknownVendor}, codes(findings))
}

func TestEvaluate_SubtotalAndTotal(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    2000,
		LineItems: []entity.LineItem{line("WidgetA", 4, 250)},
		Subtotal:  entity.Float(1500),
		TaxAmount: entity.Float(100),
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{entity.CodeSubtotalMismatch, entity.CodeTotalMismatch}, codes(findings))

	inv.Subtotal = entity.Float(1000)
	inv.Amount = 1100
	assert.Empty(t, newEngine().Evaluate(inv, testSnapshot()))
}

func TestEvaluate_OrderIsLineItemsThenInvoice(t *testing.T) {
	inv := &entity.Invoice{
		Vendor: "Shadow Corp",
		LineItems: []entity.LineItem{
			line("Nope", 1, 1),
			line("GadgetX", 9, 400),
			{Item: "FakeItem", Quantity: -1},
		},
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	assert.Equal(t, []entity.FindingCode{
		entity.CodeUnknownItem,
		entity.CodeQuantityExceedsStock,
		entity.CodeNegativeQuantity,
		entity.CodeOutOfStock,
		entity.CodeInactiveItem,
		entity.CodeUnknownVendor,
	}, codes(findings))
}

func TestEvaluate_Idempotent(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "NoProd Industries",
		Amount:    9000,
		LineItems: []entity.LineItem{line("GadgetX", 20, 410), {Item: "Ghost", Quantity: -2}},
	}
	engine := newEngine()
	snap := testSnapshot()

	first, err := json.Marshal(engine.Evaluate(inv, snap))
	require.NoError(t, err)
	second, err := json.Marshal(engine.Evaluate(inv, snap))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestEvaluate_AddingLineItemNeverRemovesFindings(t *testing.T) {
	base := &entity.Invoice{
		Vendor:    "NoProd Industries",
		Amount:    100,
		LineItems: []entity.LineItem{line("GadgetX", 20, 400), line("Ghost", 1, 1)},
		Subtotal:  entity.Float(100),
	}
	before := newEngine().Evaluate(base, testSnapshot())
	require.Contains(t, codes(before), entity.CodeSubtotalMismatch)

	extras := []entity.LineItem{
		line("WidgetA", 1, 250),
		line("WidgetB", -5, 1),
		{Item: "FakeItem", Quantity: 1},
	}
	for _, extra := range extras {
		t.Run(extra.Item, func(t *testing.T) {
			grown := *base
			grown.LineItems = append(append([]entity.LineItem{}, base.LineItems...), extra)
			after := newEngine().Evaluate(&grown, testSnapshot())
			assert.Subset(t, withoutTotals(after), withoutTotals(before))
			if _, priced := extra.ExtendedAmount(); !priced {
				assert.Subset(t, after, before)
			}
		})
	}
}

// withoutTotals drops the invoice-level totals findings, which depend on the
// sum of every line.
func withoutTotals(findings []entity.Finding) []entity.Finding {
	var out []entity.Finding
	for _, f := range findings {
		switch f.Code {
		case entity.CodeSubtotalMismatch, entity.CodeSubtotalUnverifiable, entity.CodeTotalMismatch:
			continue
		}
		out = append(out, f)
	}
	return out
}

func TestEvaluate_SubtotalOverPricedLines(t *testing.T) {
	base := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    900,
		Currency:  "USD",
		LineItems: []entity.LineItem{line("WidgetA", 2, 250)},
		Subtotal:  entity.Float(900),
	}
	unpriced := entity.LineItem{Item: "WidgetB", Quantity: 1}

	tests := []struct {
		name  string
		extra []entity.LineItem
		want  []entity.FindingCode
	}{
		{"priced lines only", nil, []entity.FindingCode{entity.CodeSubtotalMismatch}},
		{"unpriced line keeps the mismatch", []entity.LineItem{unpriced},
			[]entity.FindingCode{entity.CodeSubtotalMismatch, entity.CodeSubtotalUnverifiable}},
		{"priced line closing the gap clears it", []entity.LineItem{line("GadgetX", 1, 400)}, []entity.FindingCode{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := *base
			inv.LineItems = append(append([]entity.LineItem{}, base.LineItems...), tt.extra...)
			assert.Equal(t, tt.want, codes(newEngine().Evaluate(&inv, testSnapshot())))
		})
	}
}

func TestEvaluate_SubtotalWithOnlyUnpricedLines(t *testing.T) {
	inv := &entity.Invoice{
		Vendor:    "Widgets Inc.",
		Amount:    900,
		LineItems: []entity.LineItem{{Item: "WidgetA", Quantity: 1}},
		Subtotal:  entity.Float(900),
	}

	findings := newEngine().Evaluate(inv, testSnapshot())
	require.Len(t, findings, 1)
	assert.Equal(t, entity.CodeSubtotalUnverifiable, findings[0].Code)
	assert.Equal(t, entity.SeverityInfo, findings[0].Severity)
}

func TestEvaluate_NilInputs(t *testing.T) {
	assert.Empty(t, newEngine().Evaluate(nil, testSnapshot()))

	inv := &entity.Invoice{Vendor: "Widgets Inc.", LineItems: []entity.LineItem{line("WidgetA", 1, 250)}}
	findings := newEngine().Evaluate(inv, nil)
	assert.Equal(t, []entity.FindingCode{entity.CodeUnknownItem, entity.CodeUnknownVendor}, codes(findings))
}

func TestTolerance_Within(t *testing.T) {
	tol := DefaultTolerance()
	assert.True(t, tol.Within(0.1+0.2, 0.3))
	assert.True(t, tol.Within(10000, 10049))
	assert.False(t, tol.Within(10000, 10051))
	assert.False(t, tol.Within(1, 1.02))

	strict := Tolerance{}
	assert.True(t, strict.Within(5, 5))
	assert.False(t, strict.Within(5, 5.0001))
}
