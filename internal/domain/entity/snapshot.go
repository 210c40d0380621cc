package entity

// InventoryRecord is a catalog entry keyed by item name
type InventoryRecord struct {
	Item      string  `json:"item" yaml:"item"`
	Stock     int     `json:"stock" yaml:"stock"`
	UnitPrice float64 `json:"unit_price" yaml:"unit_price"`
	Category  string  `json:"category,omitempty" yaml:"category"`
	Active    bool    `json:"active" yaml:"active"`
}

// VendorRecord is a vendor master entry keyed by vendor name
type VendorRecord struct {
	Name         string `json:"name" yaml:"name"`
	Address      string `json:"address,omitempty" yaml:"address"`
	Trusted      bool   `json:"trusted" yaml:"trusted"`
	PaymentTerms string `json:"payment_terms,omitempty" yaml:"payment_terms"`
}
