package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// PaymentLedger persists executed payments keyed by idempotency key
type PaymentLedger struct {
	db *DB
}

var _ port.PaymentLedger = (*PaymentLedger)(nil)

// NewPaymentLedger creates a new payment ledger
func NewPaymentLedger(db *DB) *PaymentLedger {
	return &PaymentLedger{db: db}
}

func (l *PaymentLedger) Find(ctx context.Context, key string) (*entity.PaymentResult, error) {
	query, args, err := sq.Select("result_json").
		From("payments").
		Where(sq.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var payload string
	err = l.db.getExecutor(ctx).QueryRowContext(ctx, query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}

	var res entity.PaymentResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}
	return &res, nil
}

// Record stores the first result for a key. Later records for the same key are ignored.
func (l *PaymentLedger) Record(ctx context.Context, key string, result *entity.PaymentResult) error {
	if result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}
	_, err = l.db.exec(ctx, sq.Insert("payments").
		Options("OR IGNORE").
		Columns("idempotency_key", "reference_id", "vendor", "amount", "currency", "status", "result_json", "paid_at").
		Values(key, result.ReferenceID, result.Vendor, result.Amount, result.Currency, string(result.Status), string(payload), result.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
