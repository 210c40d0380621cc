package payment

import (
	"context"
	"sync"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// MemoryLedger is a process-local payment ledger
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]entity.PaymentResult
}

var _ port.PaymentLedger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]entity.PaymentResult)}
}

func (l *MemoryLedger) Find(ctx context.Context, key string) (*entity.PaymentResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.entries[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *MemoryLedger) Record(ctx context.Context, key string, result *entity.PaymentResult) error {
	if result == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = *result
	return nil
}
