// Package validation checks an invoice against an inventory and vendor
// snapshot and produces ordered findings.
package validation

import (
	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Config holds the engine's tunables
type Config struct {
	Tolerance Tolerance
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{Tolerance: DefaultTolerance()}
}

// Engine evaluates the rule set. It holds no state between calls.
type Engine struct {
	tolerance    Tolerance
	lineRules    []lineRule
	invoiceRules []invoiceRule
}

// NewEngine creates a rule engine
func NewEngine(cfg Config) *Engine {
	return &Engine{
		tolerance:    cfg.Tolerance,
		lineRules:    defaultLineRules(),
		invoiceRules: defaultInvoiceRules(),
	}
}

// Evaluate runs every rule and returns findings in a stable order: each line
// item in invoice order through the line rules, then the invoice-level rules.
// It never fails; rules whose inputs are absent are skipped.
func (e *Engine) Evaluate(inv *entity.Invoice, snap port.SnapshotProvider) []entity.Finding {
	findings := []entity.Finding{}
	if inv == nil {
		return findings
	}
	if snap == nil {
		snap = emptySnapshot{}
	}

	for i, item := range inv.LineItems {
		lc := lineContext{index: i, item: item, tolerance: e.tolerance}
		if rec, ok := snap.LookupItem(item.Item); ok {
			lc.record = &rec
		}
		for _, rule := range e.lineRules {
			if f, hit := rule(lc); hit {
				findings = append(findings, f)
			}
		}
	}

	ic := invoiceContext{invoice: inv, tolerance: e.tolerance}
	if inv.HasVendor() {
		if rec, ok := snap.LookupVendor(inv.Vendor); ok {
			ic.vendor = &rec
		}
	}
	for _, rule := range e.invoiceRules {
		findings = append(findings, rule(ic)...)
	}

	return findings
}

type emptySnapshot struct{}

func (emptySnapshot) LookupItem(string) (entity.InventoryRecord, bool) {
	return entity.InventoryRecord{}, false
}

func (emptySnapshot) LookupVendor(string) (entity.VendorRecord, bool) {
	return entity.VendorRecord{}, false
}
