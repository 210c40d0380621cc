package snapshot

import "github.com/garyjia/invoice-pipeline/internal/domain/entity"

// SeedItems is the demo catalog loaded by init-db
func SeedItems() []entity.InventoryRecord {
	return []entity.InventoryRecord{
		{Item: "WidgetA", Stock: 15, UnitPrice: 250.00, Category: "Widgets", Active: true},
		{Item: "WidgetB", Stock: 10, UnitPrice: 500.00, Category: "Widgets", Active: true},
		{Item: "GadgetX", Stock: 5, UnitPrice: 400.00, Category: "Gadgets", Active: true},
		{Item: "FakeItem", Stock: 0, UnitPrice: 0.00, Category: "Invalid", Active: false},
	}
}

// SeedVendors is the demo vendor master loaded by init-db
func SeedVendors() []entity.VendorRecord {
	return []entity.VendorRecord{
		{Name: "Widgets Inc.", Address: "123 Industrial Way, Springfield", Trusted: true, PaymentTerms: "Net 15"},
		{Name: "Precision Parts Ltd.", Address: "88 Harbor Road, Portsmouth", Trusted: true, PaymentTerms: "Net 30"},
		{Name: "Acme Industrial Supplies", Address: "1 Acme Plaza, Phoenix", Trusted: true, PaymentTerms: "Net 15"},
		{Name: "NoProd Industries", Address: "Unknown", Trusted: false, PaymentTerms: "Net 30"},
	}
}

// Seed returns a snapshot of the demo data
func Seed() *Snapshot {
	return New(SeedItems(), SeedVendors())
}
