// Package snapshot provides read-only point-in-time inventory and vendor views.
package snapshot

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Snapshot is immutable after construction and safe for concurrent lookups
type Snapshot struct {
	items   map[string]entity.InventoryRecord
	vendors map[string]entity.VendorRecord
	takenAt time.Time
}

var _ port.SnapshotProvider = (*Snapshot)(nil)

// New copies the records into a snapshot. Later duplicates replace earlier ones.
func New(items []entity.InventoryRecord, vendors []entity.VendorRecord) *Snapshot {
	s := &Snapshot{
		items:   make(map[string]entity.InventoryRecord, len(items)),
		vendors: make(map[string]entity.VendorRecord, len(vendors)),
		takenAt: time.Now().UTC(),
	}
	for _, it := range items {
		s.items[Key(it.Item)] = it
	}
	for _, v := range vendors {
		s.vendors[Key(v.Name)] = v
	}
	return s
}

// Key normalizes a lookup name: surrounding space trimmed, Unicode NFC.
// Matching stays case-sensitive.
func Key(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// LookupItem returns the inventory record for name
func (s *Snapshot) LookupItem(name string) (entity.InventoryRecord, bool) {
	rec, ok := s.items[Key(name)]
	return rec, ok
}

// LookupVendor returns the vendor record for name
func (s *Snapshot) LookupVendor(name string) (entity.VendorRecord, bool) {
	rec, ok := s.vendors[Key(name)]
	return rec, ok
}

// TakenAt returns when the snapshot was materialized
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Items returns the inventory records sorted by name
func (s *Snapshot) Items() []entity.InventoryRecord {
	out := make([]entity.InventoryRecord, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// Vendors returns the vendor records sorted by name
func (s *Snapshot) Vendors() []entity.VendorRecord {
	out := make([]entity.VendorRecord, 0, len(s.vendors))
	for _, v := range s.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
