package port

import "github.com/garyjia/invoice-pipeline/internal/domain/entity"

// SnapshotProvider is a read-only point-in-time view of inventory and vendors.
// Lookups never fail; a miss is reported through the bool.
type SnapshotProvider interface {
	LookupItem(name string) (entity.InventoryRecord, bool)
	LookupVendor(name string) (entity.VendorRecord, bool)
}
