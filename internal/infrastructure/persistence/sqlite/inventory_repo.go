package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/snapshot"
)

// InventoryRepository implements port.InventoryRepository
type InventoryRepository struct {
	db     *DB
	logger *zap.Logger
}

var _ port.InventoryRepository = (*InventoryRepository)(nil)

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *DB, logger *zap.Logger) *InventoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryRepository{db: db, logger: logger}
}

// UpsertItem inserts or replaces an inventory row
func (r *InventoryRepository) UpsertItem(ctx context.Context, rec entity.InventoryRecord) error {
	if rec.Stock < 0 {
		return fmt.Errorf("%w: stock for %q is negative", entity.ErrContractViolation, rec.Item)
	}
	_, err := r.db.exec(ctx, sq.Insert("inventory").
		Columns("item", "stock", "unit_price", "category", "active").
		Values(snapshot.Key(rec.Item), rec.Stock, rec.UnitPrice, rec.Category, rec.Active).
		Suffix(`ON CONFLICT(item) DO UPDATE SET
			stock = excluded.stock,
			unit_price = excluded.unit_price,
			category = excluded.category,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP`))
	if err != nil {
		r.logger.Error("Failed to upsert inventory item", zap.String("item", rec.Item), zap.Error(err))
		return fmt.Errorf("failed to upsert inventory item: %w", err)
	}
	return nil
}

// UpsertVendor inserts or replaces a vendor row
func (r *InventoryRepository) UpsertVendor(ctx context.Context, rec entity.VendorRecord) error {
	_, err := r.db.exec(ctx, sq.Insert("vendors").
		Columns("name", "address", "trusted", "payment_terms").
		Values(snapshot.Key(rec.Name), rec.Address, rec.Trusted, rec.PaymentTerms).
		Suffix(`ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			trusted = excluded.trusted,
			payment_terms = excluded.payment_terms,
			updated_at = CURRENT_TIMESTAMP`))
	if err != nil {
		r.logger.Error("Failed to upsert vendor", zap.String("vendor", rec.Name), zap.Error(err))
		return fmt.Errorf("failed to upsert vendor: %w", err)
	}
	return nil
}

// ListItems returns all inventory rows ordered by name
func (r *InventoryRepository) ListItems(ctx context.Context) ([]entity.InventoryRecord, error) {
	rows, err := r.db.query(ctx, sq.Select("item", "stock", "unit_price", "category", "active").
		From("inventory").
		OrderBy("item"))
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var items []entity.InventoryRecord
	for rows.Next() {
		var rec entity.InventoryRecord
		if err := rows.Scan(&rec.Item, &rec.Stock, &rec.UnitPrice, &rec.Category, &rec.Active); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// ListVendors returns all vendor rows ordered by name
func (r *InventoryRepository) ListVendors(ctx context.Context) ([]entity.VendorRecord, error) {
	rows, err := r.db.query(ctx, sq.Select("name", "address", "trusted", "payment_terms").
		From("vendors").
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []entity.VendorRecord
	for rows.Next() {
		var rec entity.VendorRecord
		if err := rows.Scan(&rec.Name, &rec.Address, &rec.Trusted, &rec.PaymentTerms); err != nil {
			return nil, fmt.Errorf("failed to scan vendor row: %w", err)
		}
		vendors = append(vendors, rec)
	}
	return vendors, rows.Err()
}

// LoadSnapshot reads both tables in one transaction so the snapshot is
// consistent, then detaches it from the database.
func (r *InventoryRepository) LoadSnapshot(ctx context.Context) (port.SnapshotProvider, error) {
	var items []entity.InventoryRecord
	var vendors []entity.VendorRecord
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if items, err = r.ListItems(ctx); err != nil {
			return err
		}
		vendors, err = r.ListVendors(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	r.logger.Debug("Snapshot loaded", zap.Int("items", len(items)), zap.Int("vendors", len(vendors)))
	return snapshot.New(items, vendors), nil
}

// Seed inserts rows that are not present yet. Existing rows are left alone
// so operator edits survive repeated init-db runs.
func (r *InventoryRepository) Seed(ctx context.Context, items []entity.InventoryRecord, vendors []entity.VendorRecord) (int, error) {
	inserted := 0
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		for _, it := range items {
			res, err := r.db.exec(ctx, sq.Insert("inventory").
				Options("OR IGNORE").
				Columns("item", "stock", "unit_price", "category", "active").
				Values(snapshot.Key(it.Item), it.Stock, it.UnitPrice, it.Category, it.Active))
			if err != nil {
				return fmt.Errorf("failed to seed item %q: %w", it.Item, err)
			}
			inserted += affected(res)
		}
		for _, v := range vendors {
			res, err := r.db.exec(ctx, sq.Insert("vendors").
				Options("OR IGNORE").
				Columns("name", "address", "trusted", "payment_terms").
				Values(snapshot.Key(v.Name), v.Address, v.Trusted, v.PaymentTerms))
			if err != nil {
				return fmt.Errorf("failed to seed vendor %q: %w", v.Name, err)
			}
			inserted += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Info("Seed data applied", zap.Int("inserted", inserted))
	return inserted, nil
}
