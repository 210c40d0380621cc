package port

import (
	"context"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// TransactionManager runs fn inside a database transaction carried by ctx
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryRepository manages the inventory and vendor master tables
type InventoryRepository interface {
	UpsertItem(ctx context.Context, rec entity.InventoryRecord) error
	UpsertVendor(ctx context.Context, rec entity.VendorRecord) error
	ListItems(ctx context.Context) ([]entity.InventoryRecord, error)
	ListVendors(ctx context.Context) ([]entity.VendorRecord, error)
}

// ResultFilter narrows a result listing
type ResultFilter struct {
	Approved *bool
	Vendor   string
	Limit    int
	Offset   int
}

// ResultRepository stores pipeline results as audit records
type ResultRepository interface {
	Save(ctx context.Context, result *entity.PipelineResult) error
	GetByRunID(ctx context.Context, runID string) (*entity.PipelineResult, error)
	List(ctx context.Context, filter ResultFilter) ([]*entity.PipelineResult, error)
}
