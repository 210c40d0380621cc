package ingest

import (
	"context"
	"regexp"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

const moneyPattern = `\$?\s*(-?[0-9O][0-9O,]*(?:\.[0-9O]{1,2})?)`

var (
	reVendor        = labelled(`vendor|supplier|from`)
	reInvoiceNumber = labelled(`invoice\s*(?:number|no\.?|#)|inv\s*no\.?`)
	reDueDate       = labelled(`due\s*date|due`)
	rePaymentTerms  = labelled(`payment\s*terms|terms`)
	reCurrency      = labelled(`currency`)
	reTotal         = regexp.MustCompile(`(?im)^[ \t]*(?:total\s*amount|total\s*due|amount\s*due|total)[ \t]*:\s*` + moneyPattern)
	reSubtotal      = regexp.MustCompile(`(?im)^[ \t]*sub\s*total[ \t]*:\s*` + moneyPattern)
	reTax           = regexp.MustCompile(`(?im)^[ \t]*tax(?:[ \t]*\(([0-9.]+)\s*%\))?[ \t]*:\s*` + moneyPattern)

	// "WidgetA    qty: 8    unit price: $300.00"
	reLabelledItem = regexp.MustCompile(`(?i)^\s*(.+?)\s+qty:\s*(-?\d+)\s+unit\s*price:\s*` + moneyPattern + `(?:\s+amount:\s*` + moneyPattern + `)?\s*$`)
	// "Widget A       12    $250     $3,000.00"
	reTabularItem = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 ._\-]*?)\s+(-?\d+)\s+` + moneyPattern + `\s+` + moneyPattern + `\s*$`)
)

// labelled matches "Label: value" where the value may sit on the next line,
// which is how PDF text extraction often splits table cells.
func labelled(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*(?:` + label + `)[ \t]*:[ \t]*(?:\r?\n[ \t]*)?(\S.*?)[ \t]*$`)
}

func parseTXT(_ context.Context, path string, data []byte) (*draft, error) {
	d := newDraft(path, "txt", entity.ConfidenceMedium)
	parseText(d, string(data), "txt")
	return d, nil
}

// parseText extracts labelled fields and item rows from free text
func parseText(d *draft, text, source string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if m := reVendor.FindStringSubmatch(text); m != nil {
		d.setVendor(m[1], source+":vendor")
	}
	if m := reInvoiceNumber.FindStringSubmatch(text); m != nil {
		d.setString(entity.FieldInvoiceNumber, m[1], source+":invoice_number")
	}
	if m := reDueDate.FindStringSubmatch(text); m != nil {
		d.setString(entity.FieldDueDate, m[1], source+":due_date")
	}
	if m := rePaymentTerms.FindStringSubmatch(text); m != nil {
		d.setString(entity.FieldPaymentTerms, m[1], source+":payment_terms")
	}
	if m := reCurrency.FindStringSubmatch(text); m != nil {
		d.setString(fieldCurrency, m[1], source+":currency")
	}
	if m := reTotal.FindStringSubmatch(text); m != nil {
		if v, err := parseMoney(m[1]); err == nil {
			d.setAmount(v, source+":total")
		} else {
			d.meta.Warn("total: %v", err)
		}
	}
	if m := reSubtotal.FindStringSubmatch(text); m != nil {
		if v, err := parseMoney(m[1]); err == nil {
			d.setMoney(entity.FieldSubtotal, v, source+":subtotal")
		}
	}
	if m := reTax.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			if v, err := parseRate(m[1] + "%"); err == nil {
				d.setMoney(fieldTaxRate, v, source+":tax")
			}
		}
		if v, err := parseMoney(m[2]); err == nil {
			d.setMoney(entity.FieldTaxAmount, v, source+":tax")
		}
	}

	for n, line := range strings.Split(text, "\n") {
		if strings.Contains(line, ":") && !strings.Contains(strings.ToLower(line), "qty:") {
			continue
		}
		if m := reLabelledItem.FindStringSubmatch(line); m != nil {
			addTextItem(d, n+1, m[1], m[2], m[3], m[4])
			continue
		}
		if m := reTabularItem.FindStringSubmatch(line); m != nil {
			addTextItem(d, n+1, m[1], m[2], m[3], m[4])
		}
	}
}

func addTextItem(d *draft, lineNo int, name, qty, price, amount string) {
	q, err := parseQuantity(qty)
	if err != nil {
		d.meta.Warn("line %d: %v", lineNo, err)
		return
	}
	item := entity.LineItem{Item: strings.TrimSpace(name), Quantity: q}
	if v, err := parseMoney(price); err == nil {
		item.UnitPrice = entity.Float(v)
	} else {
		d.meta.Warn("line %d: %v", lineNo, err)
	}
	if amount != "" {
		if v, err := parseMoney(amount); err == nil {
			item.Amount = entity.Float(v)
		} else {
			d.meta.Warn("line %d: %v", lineNo, err)
		}
	}
	d.addItem(item)
}
