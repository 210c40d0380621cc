package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ResultRepository stores pipeline results as JSON with indexed columns
type ResultRepository struct {
	db     *DB
	logger *zap.Logger
}

var _ port.ResultRepository = (*ResultRepository)(nil)

// NewResultRepository creates a new result repository
func NewResultRepository(db *DB, logger *zap.Logger) *ResultRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultRepository{db: db, logger: logger}
}

// Save inserts the result, replacing an earlier record for the same run id
func (r *ResultRepository) Save(ctx context.Context, result *entity.PipelineResult) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("%w: result without run id", entity.ErrContractViolation)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	var vendor, paymentStatus string
	var amount float64
	if result.Invoice != nil {
		vendor = result.Invoice.Vendor
		amount = result.Invoice.Amount
	}
	if result.Payment != nil {
		paymentStatus = string(result.Payment.Status)
	}

	_, err = r.db.exec(ctx, sq.Insert("pipeline_results").
		Options("OR REPLACE").
		Columns("run_id", "invoice_path", "vendor", "amount", "approved", "payment_status",
			"internal_error", "result_json", "started_at", "completed_at").
		Values(result.RunID, result.InvoicePath, vendor, amount, result.Approved(), paymentStatus,
			result.InternalError, string(payload), result.StartedAt, result.CompletedAt))
	if err != nil {
		r.logger.Error("Failed to save result", zap.String("run_id", result.RunID), zap.Error(err))
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetByRunID returns nil, nil when no result exists
func (r *ResultRepository) GetByRunID(ctx context.Context, runID string) (*entity.PipelineResult, error) {
	query, args, err := sq.Select("result_json").
		From("pipeline_results").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var payload string
	err = r.db.getExecutor(ctx).QueryRowContext(ctx, query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return decodeResult(payload)
}

// List returns results newest first
func (r *ResultRepository) List(ctx context.Context, filter port.ResultFilter) ([]*entity.PipelineResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	b := sq.Select("result_json").
		From("pipeline_results").
		OrderBy("completed_at DESC", "run_id").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if filter.Approved != nil {
		b = b.Where(sq.Eq{"approved": *filter.Approved})
	}
	if filter.Vendor != "" {
		b = b.Where(sq.Eq{"vendor": filter.Vendor})
	}

	rows, err := r.db.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []*entity.PipelineResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func decodeResult(payload string) (*entity.PipelineResult, error) {
	var res entity.PipelineResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &res, nil
}
