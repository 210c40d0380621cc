package payment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
)

// MockExecutor pretends to pay and counts calls
type MockExecutor struct {
	mu     sync.Mutex
	calls  []port.PaymentRequest
	now    func() time.Time
	logger *zap.Logger
}

var _ port.PaymentExecutor = (*MockExecutor)(nil)

// NewMockExecutor creates a mock executor
func NewMockExecutor(logger *zap.Logger) *MockExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockExecutor{
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Execute records the request and returns a reference id
func (m *MockExecutor) Execute(ctx context.Context, req port.PaymentRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	ref := ReferenceID(req.InvoiceNumber, m.now())
	m.logger.Debug("Mock payment sent",
		zap.String("vendor", req.Vendor),
		zap.Float64("amount", req.Amount),
		zap.String("reference_id", ref))
	return ref, nil
}

// Calls returns how many payments were executed
func (m *MockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Requests returns a copy of every executed request
func (m *MockExecutor) Requests() []port.PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]port.PaymentRequest(nil), m.calls...)
}
