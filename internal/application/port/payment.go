package port

import (
	"context"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// PaymentRequest is what the gate hands to an executor
type PaymentRequest struct {
	IdempotencyKey string
	Vendor         string
	InvoiceNumber  string
	Amount         float64
	Currency       string
}

// PaymentExecutor performs the side-effecting payment call
type PaymentExecutor interface {
	Execute(ctx context.Context, req PaymentRequest) (referenceID string, err error)
}

// PaymentLedger remembers completed payments so an invoice is never paid twice
type PaymentLedger interface {
	Find(ctx context.Context, idempotencyKey string) (*entity.PaymentResult, error)
	Record(ctx context.Context, idempotencyKey string, result *entity.PaymentResult) error
}
