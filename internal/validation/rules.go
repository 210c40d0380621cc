package validation

import (
	"fmt"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

type lineContext struct {
	index     int
	item      entity.LineItem
	record    *entity.InventoryRecord
	tolerance Tolerance
}

type invoiceContext struct {
	invoice   *entity.Invoice
	vendor    *entity.VendorRecord
	tolerance Tolerance
}

// lineRule inspects one line item; each rule is an independent predicate
type lineRule func(lc lineContext) (entity.Finding, bool)

// invoiceRule inspects the invoice as a whole and may emit several findings
type invoiceRule func(ic invoiceContext) []entity.Finding

func defaultLineRules() []lineRule {
	return []lineRule{
		checkUnknownItem,
		checkNegativeQuantity,
		checkOutOfStock,
		checkQuantityExceedsStock,
		checkInactiveItem,
		checkPriceMismatch,
		checkLineAmount,
	}
}

func defaultInvoiceRules() []invoiceRule {
	return []invoiceRule{
		checkRequiredFields,
		checkVendor,
		checkSubtotal,
		checkTotal,
	}
}

func itemLabel(lc lineContext) string {
	if strings.TrimSpace(lc.item.Item) == "" {
		return fmt.Sprintf("line %d", lc.index+1)
	}
	return lc.item.Item
}

func checkUnknownItem(lc lineContext) (entity.Finding, bool) {
	if lc.record != nil {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:     entity.CodeUnknownItem,
		Severity: entity.SeverityError,
		Message:  fmt.Sprintf("Item '%s' not found in inventory", itemLabel(lc)),
		ItemName: lc.item.Item,
	}, true
}

func checkNegativeQuantity(lc lineContext) (entity.Finding, bool) {
	if lc.item.Quantity >= 0 {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:         entity.CodeNegativeQuantity,
		Severity:     entity.SeverityError,
		Message:      fmt.Sprintf("Item '%s' has negative quantity %d", itemLabel(lc), lc.item.Quantity),
		ItemName:     lc.item.Item,
		RequestedQty: entity.Int(lc.item.Quantity),
	}, true
}

func checkOutOfStock(lc lineContext) (entity.Finding, bool) {
	if lc.record == nil || lc.record.Stock != 0 {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:         entity.CodeOutOfStock,
		Severity:     entity.SeverityError,
		Message:      fmt.Sprintf("Item '%s' is out of stock", itemLabel(lc)),
		ItemName:     lc.item.Item,
		RequestedQty: entity.Int(lc.item.Quantity),
		AvailableQty: entity.Int(0),
	}, true
}

func checkQuantityExceedsStock(lc lineContext) (entity.Finding, bool) {
	if lc.record == nil || lc.record.Stock <= 0 || lc.item.Quantity <= lc.record.Stock {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:     entity.CodeQuantityExceedsStock,
		Severity: entity.SeverityWarn,
		Message: fmt.Sprintf("Requested quantity %d of '%s' exceeds available stock %d",
			lc.item.Quantity, itemLabel(lc), lc.record.Stock),
		ItemName:     lc.item.Item,
		RequestedQty: entity.Int(lc.item.Quantity),
		AvailableQty: entity.Int(lc.record.Stock),
	}, true
}

func checkInactiveItem(lc lineContext) (entity.Finding, bool) {
	if lc.record == nil || lc.record.Active {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:     entity.CodeInactiveItem,
		Severity: entity.SeverityWarn,
		Message:  fmt.Sprintf("Item '%s' is marked inactive in the catalog", itemLabel(lc)),
		ItemName: lc.item.Item,
	}, true
}

func checkPriceMismatch(lc lineContext) (entity.Finding, bool) {
	if lc.record == nil || lc.item.UnitPrice == nil {
		return entity.Finding{}, false
	}
	if lc.tolerance.Within(*lc.item.UnitPrice, lc.record.UnitPrice) {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:     entity.CodePriceMismatch,
		Severity: entity.SeverityWarn,
		Message: fmt.Sprintf("Unit price %s for '%s' differs from catalog price %s",
			utils.FormatMoney(*lc.item.UnitPrice, ""), itemLabel(lc), utils.FormatMoney(lc.record.UnitPrice, "")),
		ItemName: lc.item.Item,
	}, true
}

func checkLineAmount(lc lineContext) (entity.Finding, bool) {
	if lc.item.Amount == nil || lc.item.UnitPrice == nil {
		return entity.Finding{}, false
	}
	expected := float64(lc.item.Quantity) * *lc.item.UnitPrice
	if lc.tolerance.Within(*lc.item.Amount, expected) {
		return entity.Finding{}, false
	}
	return entity.Finding{
		Code:     entity.CodeLineAmountMismatch,
		Severity: entity.SeverityWarn,
		Message: fmt.Sprintf("Line amount %s for '%s' does not equal %d x %s",
			utils.FormatMoney(*lc.item.Amount, ""), itemLabel(lc), lc.item.Quantity, utils.FormatMoney(*lc.item.UnitPrice, "")),
		ItemName: lc.item.Item,
	}, true
}

func checkRequiredFields(ic invoiceContext) []entity.Finding {
	var out []entity.Finding
	inv := ic.invoice
	if !inv.HasVendor() || inv.Provenance.IsMissing(entity.FieldVendor) {
		out = append(out, entity.Finding{
			Code:     entity.CodeMissingRequiredField,
			Severity: entity.SeverityError,
			Message:  "Required field 'vendor' is missing or unreadable",
		})
	}
	if inv.Provenance.IsMissing(entity.FieldAmount) {
		out = append(out, entity.Finding{
			Code:     entity.CodeMissingRequiredField,
			Severity: entity.SeverityError,
			Message:  "Required field 'amount' is missing or unreadable",
		})
	}
	return out
}

func checkVendor(ic invoiceContext) []entity.Finding {
	if !ic.invoice.HasVendor() {
		return nil
	}
	if ic.vendor == nil {
		return []entity.Finding{{
			Code:     entity.CodeUnknownVendor,
			Severity: entity.SeverityWarn,
			Message:  fmt.Sprintf("Vendor '%s' not found in vendor master", ic.invoice.Vendor),
		}}
	}
	if !ic.vendor.Trusted {
		return []entity.Finding{{
			Code:     entity.CodeSuspiciousVendor,
			Severity: entity.SeverityWarn,
			Message:  fmt.Sprintf("Vendor '%s' is not a trusted vendor", ic.invoice.Vendor),
		}}
	}
	return nil
}

// checkSubtotal compares the stated subtotal with the priced line items.
// Lines with neither an amount nor a unit price are reported, not skipped.
func checkSubtotal(ic invoiceContext) []entity.Finding {
	inv := ic.invoice
	if inv.Subtotal == nil || len(inv.LineItems) == 0 {
		return nil
	}
	var sum float64
	priced, unpriced := 0, 0
	for _, li := range inv.LineItems {
		amt, ok := li.ExtendedAmount()
		if !ok {
			unpriced++
			continue
		}
		priced++
		sum += amt
	}

	var findings []entity.Finding
	if priced > 0 && !ic.tolerance.Within(sum, *inv.Subtotal) {
		findings = append(findings, entity.Finding{
			Code:     entity.CodeSubtotalMismatch,
			Severity: entity.SeverityWarn,
			Message: fmt.Sprintf("Subtotal %s does not match sum of line items %s",
				utils.FormatMoney(*inv.Subtotal, inv.Currency), utils.FormatMoney(sum, inv.Currency)),
		})
	}
	if unpriced > 0 {
		findings = append(findings, entity.Finding{
			Code:     entity.CodeSubtotalUnverifiable,
			Severity: entity.SeverityInfo,
			Message:  fmt.Sprintf("Subtotal cannot be fully verified: %d line item(s) have no amount or unit price", unpriced),
		})
	}
	return findings
}

func checkTotal(ic invoiceContext) []entity.Finding {
	inv := ic.invoice
	if inv.Subtotal == nil || inv.TaxAmount == nil || inv.Provenance.IsMissing(entity.FieldAmount) {
		return nil
	}
	expected := *inv.Subtotal + *inv.TaxAmount
	if ic.tolerance.Within(expected, inv.Amount) {
		return nil
	}
	return []entity.Finding{{
		Code:     entity.CodeTotalMismatch,
		Severity: entity.SeverityWarn,
		Message: fmt.Sprintf("Total %s does not equal subtotal plus tax %s",
			utils.FormatMoney(inv.Amount, inv.Currency), utils.FormatMoney(expected, inv.Currency)),
	}}
}
