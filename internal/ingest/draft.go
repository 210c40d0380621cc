package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// draft accumulates fields while a parser walks a document
type draft struct {
	inv       entity.Invoice
	meta      entity.ParseMetadata
	conf      entity.Confidence
	hasVendor bool
	hasAmount bool
}

func newDraft(path, format string, conf entity.Confidence) *draft {
	return &draft{
		inv:  entity.Invoice{LineItems: []entity.LineItem{}},
		meta: entity.NewParseMetadata(path, format, conf),
		conf: conf,
	}
}

func (d *draft) setVendor(name, source string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	d.inv.Vendor = name
	d.hasVendor = true
	d.meta.Record(entity.FieldVendor, source, d.conf)
}

func (d *draft) setAmount(v float64, source string) {
	d.inv.Amount = v
	d.hasAmount = true
	d.meta.Record(entity.FieldAmount, source, d.conf)
}

func (d *draft) setString(field, value, source string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch field {
	case entity.FieldInvoiceNumber:
		d.inv.InvoiceNumber = value
	case entity.FieldDueDate:
		d.inv.DueDate = value
	case entity.FieldPaymentTerms:
		d.inv.PaymentTerms = value
	case fieldVendorAddress:
		d.inv.VendorAddress = value
	case fieldCurrency:
		d.inv.Currency = strings.ToUpper(value)
	default:
		return
	}
	d.meta.Record(field, source, d.conf)
}

func (d *draft) setMoney(field string, v float64, source string) {
	switch field {
	case entity.FieldSubtotal:
		d.inv.Subtotal = entity.Float(v)
	case entity.FieldTaxAmount:
		d.inv.TaxAmount = entity.Float(v)
	case fieldTaxRate:
		d.inv.TaxRate = entity.Float(v)
	default:
		return
	}
	d.meta.Record(field, source, d.conf)
}

func (d *draft) addItem(li entity.LineItem) {
	li.Item = strings.TrimSpace(li.Item)
	d.inv.LineItems = append(d.inv.LineItems, li)
}

// finish applies defaults for missing required fields and returns the invoice
func (d *draft) finish() *entity.Invoice {
	if !d.hasVendor {
		d.inv.Vendor = entity.VendorUnknown
		d.meta.MarkMissing(entity.FieldVendor, "missing vendor; defaulted to Unknown")
	}
	if !d.hasAmount {
		d.inv.Amount = 0
		d.meta.MarkMissing(entity.FieldAmount, "missing total amount; defaulted to 0.00")
	}
	if len(d.inv.LineItems) == 0 {
		d.meta.Warn("no line items found")
	} else {
		d.meta.Record(entity.FieldLineItems, d.meta.SourceFormat, d.conf)
	}
	if d.inv.Currency == "" {
		d.inv.Currency = entity.DefaultCurrency
	}
	if !d.hasVendor || !d.hasAmount {
		d.meta.Confidence = entity.ConfidenceLow
	}
	inv := d.inv
	inv.Provenance = d.meta
	return &inv
}

const (
	fieldVendorAddress = "vendor_address"
	fieldCurrency      = "currency"
	fieldTaxRate       = "tax_rate"
	fieldTotal         = "total"
	fieldItem          = "item"
	fieldQuantity      = "quantity"
	fieldUnitPrice     = "unit_price"
	fieldLineAmount    = "amount"
	fieldDate          = "date"
)

var labelAliases = map[string]string{
	"vendor":         entity.FieldVendor,
	"vendor_name":    entity.FieldVendor,
	"supplier":       entity.FieldVendor,
	"from":           entity.FieldVendor,
	"invoice_number": entity.FieldInvoiceNumber,
	"invoice_no":     entity.FieldInvoiceNumber,
	"invoice_#":      entity.FieldInvoiceNumber,
	"inv_no":         entity.FieldInvoiceNumber,
	"due_date":       entity.FieldDueDate,
	"due":            entity.FieldDueDate,
	"date":           fieldDate,
	"invoice_date":   fieldDate,
	"total":          fieldTotal,
	"total_amount":   fieldTotal,
	"total_due":      fieldTotal,
	"amount_due":     fieldTotal,
	"subtotal":       entity.FieldSubtotal,
	"tax":            entity.FieldTaxAmount,
	"tax_amount":     entity.FieldTaxAmount,
	"tax_rate":       fieldTaxRate,
	"payment_terms":  entity.FieldPaymentTerms,
	"terms":          entity.FieldPaymentTerms,
	"currency":       fieldCurrency,
	"vendor_address": fieldVendorAddress,
	"address":        fieldVendorAddress,
	"item":           fieldItem,
	"description":    fieldItem,
	"quantity":       fieldQuantity,
	"qty":            fieldQuantity,
	"unit_price":     fieldUnitPrice,
	"price":          fieldUnitPrice,
	"amount":         fieldLineAmount,
	"line_total":     fieldLineAmount,
}

// canonicalLabel maps a free-form label like "Invoice No:" to a field name
func canonicalLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.TrimSuffix(l, ":")
	l = strings.TrimSpace(l)
	l = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(l)
	if canon, ok := labelAliases[l]; ok {
		return canon
	}
	return l
}

// parseMoney reads amounts like "$4,800.00" or OCR-damaged "3,500.O0"
func parseMoney(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "USD")
	clean = strings.Map(func(r rune) rune {
		switch {
		case r == 'O' || r == 'o':
			return '0'
		case r == '$' || r == ',' || r == ' ':
			return -1
		}
		return r
	}, clean)
	if clean == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrMalformedDocument)
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrMalformedDocument, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrMalformedDocument, s)
	}
	return v, nil
}

// parseQuantity accepts integers and integral decimals like "5.0"
func parseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: invalid quantity %q", ErrMalformedDocument, s)
	}
	return int(f), nil
}
