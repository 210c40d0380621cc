package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

const lineItemsSelector = "table.line-items, table#line-items"

// parseHTML reads label/value pairs from two-cell table rows and dl lists,
// and line items from a table marked line-items.
func parseHTML(_ context.Context, path string, data []byte) (*draft, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid HTML: %v", ErrMalformedDocument, err)
	}

	d := newDraft(path, "html", entity.ConfidenceMedium)

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.ParentsFiltered(lineItemsSelector).Length() > 0 {
			return
		}
		cells := row.Children().Filter("th, td")
		if cells.Length() != 2 {
			return
		}
		applyHTMLField(d, cells.Eq(0).Text(), cells.Eq(1).Text())
	})

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		applyHTMLField(d, dt.Text(), dd.Text())
	})

	table := doc.Find(lineItemsSelector).First()
	if table.Length() > 0 {
		parseHTMLItems(d, table)
	}
	return d, nil
}

func applyHTMLField(d *draft, label, value string) {
	key := canonicalLabel(label)
	value = strings.TrimSpace(value)
	source := "html:" + key
	switch key {
	case entity.FieldVendor:
		d.setVendor(value, source)
	case fieldTotal:
		if v, err := parseMoney(value); err == nil {
			d.setAmount(v, source)
		} else {
			d.meta.Warn("total: %v", err)
		}
	case entity.FieldSubtotal, entity.FieldTaxAmount:
		if v, err := parseMoney(value); err == nil {
			d.setMoney(key, v, source)
		}
	case fieldTaxRate:
		if v, err := parseRate(value); err == nil {
			d.setMoney(key, v, source)
		}
	default:
		d.setString(key, value, source)
	}
}

// parseHTMLItems maps columns by header text so column order is free
func parseHTMLItems(d *draft, table *goquery.Selection) {
	columns := map[string]int{}
	table.Find("tr").First().Children().Filter("th, td").Each(func(i int, c *goquery.Selection) {
		columns[canonicalLabel(c.Text())] = i
	})
	itemCol, ok := columns[fieldItem]
	if !ok {
		d.meta.Warn("line-items table has no item column")
		return
	}
	qtyCol, ok := columns[fieldQuantity]
	if !ok {
		d.meta.Warn("line-items table has no quantity column")
		return
	}

	table.Find("tr").Slice(1, goquery.ToEnd).Each(func(n int, row *goquery.Selection) {
		cells := row.Children().Filter("td")
		cell := func(col int) string {
			return strings.TrimSpace(cells.Eq(col).Text())
		}
		if cells.Length() <= itemCol || cell(itemCol) == "" {
			return
		}
		qty, err := parseQuantity(cell(qtyCol))
		if err != nil {
			d.meta.Warn("line %d: %v", n+1, err)
			return
		}
		item := entity.LineItem{Item: cell(itemCol), Quantity: qty}
		if col, ok := columns[fieldUnitPrice]; ok && cell(col) != "" {
			if v, err := parseMoney(cell(col)); err == nil {
				item.UnitPrice = entity.Float(v)
			}
		}
		if col, ok := columns[fieldLineAmount]; ok && cell(col) != "" {
			if v, err := parseMoney(cell(col)); err == nil {
				item.Amount = entity.Float(v)
			}
		}
		d.addItem(item)
	})
}
