package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// parseCSV reads "field,value" rows. item starts a new line item; quantity,
// unit_price and amount that follow belong to it.
func parseCSV(_ context.Context, path string, data []byte) (*draft, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	d := newDraft(path, "csv", entity.ConfidenceMedium)
	var current *entity.LineItem
	var hasQty bool

	flush := func() {
		if current == nil {
			return
		}
		if !hasQty {
			d.meta.Warn("item %q has no quantity", current.Item)
		}
		d.addItem(*current)
		current = nil
		hasQty = false
	}

	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid CSV: %v", ErrMalformedDocument, err)
		}
		row++
		if len(rec) < 2 {
			if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
				continue
			}
			d.meta.Warn("row %d: expected field,value", row)
			continue
		}
		key, value := canonicalLabel(rec[0]), strings.TrimSpace(rec[1])
		if row == 1 && key == "field" {
			continue
		}
		source := fmt.Sprintf("csv:row %d", row)

		switch key {
		case fieldItem:
			flush()
			current = &entity.LineItem{Item: value}
		case fieldQuantity:
			if current == nil {
				d.meta.Warn("row %d: quantity without item", row)
				continue
			}
			qty, err := parseQuantity(value)
			if err != nil {
				d.meta.Warn("row %d: %v", row, err)
				continue
			}
			current.Quantity = qty
			hasQty = true
		case fieldUnitPrice:
			if current == nil {
				d.meta.Warn("row %d: unit_price without item", row)
				continue
			}
			if v, err := parseMoney(value); err == nil {
				current.UnitPrice = entity.Float(v)
			} else {
				d.meta.Warn("row %d: %v", row, err)
			}
		case fieldLineAmount:
			v, err := parseMoney(value)
			if err != nil {
				d.meta.Warn("row %d: %v", row, err)
				continue
			}
			if current != nil {
				current.Amount = entity.Float(v)
			} else {
				d.setAmount(v, source)
			}
		case entity.FieldVendor:
			flush()
			d.setVendor(value, source)
		case fieldTotal:
			flush()
			v, err := parseMoney(value)
			if err != nil {
				d.meta.Warn("row %d: %v", row, err)
				continue
			}
			d.setAmount(v, source)
		case entity.FieldSubtotal, entity.FieldTaxAmount:
			flush()
			if v, err := parseMoney(value); err == nil {
				d.setMoney(key, v, source)
			} else {
				d.meta.Warn("row %d: %v", row, err)
			}
		case fieldTaxRate:
			flush()
			if v, err := parseRate(value); err == nil {
				d.setMoney(key, v, source)
			} else {
				d.meta.Warn("row %d: %v", row, err)
			}
		default:
			flush()
			d.setString(key, value, source)
		}
	}
	flush()
	return d, nil
}

// parseRate accepts "0.05" or "5%"
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		v, err := parseMoney(strings.TrimSuffix(s, "%"))
		if err != nil {
			return 0, err
		}
		return v / 100, nil
	}
	return parseMoney(s)
}
