package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

type jsonVendor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type jsonLineItem struct {
	Item        string       `json:"item"`
	Description string       `json:"description"`
	Quantity    *json.Number `json:"quantity"`
	UnitPrice   *json.Number `json:"unit_price"`
	Amount      *json.Number `json:"amount"`
}

type jsonInvoice struct {
	InvoiceNumber string          `json:"invoice_number"`
	Vendor        json.RawMessage `json:"vendor"`
	DueDate       string          `json:"due_date"`
	Total         *json.Number    `json:"total"`
	Amount        *json.Number    `json:"amount"`
	Subtotal      *json.Number    `json:"subtotal"`
	TaxRate       *json.Number    `json:"tax_rate"`
	TaxAmount     *json.Number    `json:"tax_amount"`
	Currency      string          `json:"currency"`
	PaymentTerms  string          `json:"payment_terms"`
	LineItems     []jsonLineItem  `json:"line_items"`
}

func parseJSON(_ context.Context, path string, data []byte) (*draft, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc jsonInvoice
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedDocument, err)
	}

	d := newDraft(path, "json", entity.ConfidenceHigh)

	if len(doc.Vendor) > 0 && string(doc.Vendor) != "null" {
		var name string
		if err := json.Unmarshal(doc.Vendor, &name); err == nil {
			d.setVendor(name, "json:vendor")
		} else {
			var v jsonVendor
			if err := json.Unmarshal(doc.Vendor, &v); err != nil {
				d.meta.Warn("vendor has unexpected shape: %v", err)
			} else {
				d.setVendor(v.Name, "json:vendor.name")
				d.setString(fieldVendorAddress, v.Address, "json:vendor.address")
			}
		}
	}

	switch {
	case doc.Total != nil:
		setJSONAmount(d, doc.Total, "json:total")
	case doc.Amount != nil:
		setJSONAmount(d, doc.Amount, "json:amount")
	}

	d.setString(entity.FieldInvoiceNumber, doc.InvoiceNumber, "json:invoice_number")
	d.setString(entity.FieldDueDate, doc.DueDate, "json:due_date")
	d.setString(fieldCurrency, doc.Currency, "json:currency")
	d.setString(entity.FieldPaymentTerms, doc.PaymentTerms, "json:payment_terms")

	for field, n := range map[string]*json.Number{
		entity.FieldSubtotal:  doc.Subtotal,
		entity.FieldTaxAmount: doc.TaxAmount,
		fieldTaxRate:          doc.TaxRate,
	} {
		if n == nil {
			continue
		}
		v, err := n.Float64()
		if err != nil {
			d.meta.Warn("invalid %s %q", field, n.String())
			continue
		}
		d.setMoney(field, v, "json:"+field)
	}

	for idx, li := range doc.LineItems {
		name := li.Item
		if name == "" {
			name = li.Description
		}
		item := entity.LineItem{Item: name}
		if li.Quantity == nil {
			d.meta.Warn("line %d: missing quantity", idx+1)
			continue
		}
		qty, err := parseQuantity(li.Quantity.String())
		if err != nil {
			d.meta.Warn("line %d: %v", idx+1, err)
			continue
		}
		item.Quantity = qty
		if li.UnitPrice != nil {
			if v, err := li.UnitPrice.Float64(); err == nil {
				item.UnitPrice = entity.Float(v)
			}
		}
		if li.Amount != nil {
			if v, err := li.Amount.Float64(); err == nil {
				item.Amount = entity.Float(v)
			}
		}
		d.addItem(item)
	}
	return d, nil
}

func setJSONAmount(d *draft, n *json.Number, source string) {
	v, err := n.Float64()
	if err != nil {
		d.meta.Warn("invalid total %q", n.String())
		return
	}
	d.setAmount(v, source)
}
