// Package payment gates the side-effecting payment call on the final decision.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

const (
	referencePrefix   = "TXN"
	referenceUnknown  = "UNKNOWN"
	referenceTimeFmt  = "20060102150405"
	reasonRejected    = "Invoice rejected"
	reasonNoDecision  = "no final decision"
	reasonNoInvoice   = "no invoice"
	reasonPaid        = "payment executed"
	reasonAlreadyPaid = "already paid"
	reasonDisabled    = "payments disabled"
)

// ErrExecutorFailed prefixes the reason of a FAILED payment whose executor call errored
var ErrExecutorFailed = errors.New("payment execution failed")

// ReferenceID formats a transaction reference: TXN-<invoice|UNKNOWN>-<yyyymmddHHMMSS>
func ReferenceID(invoiceNumber string, at time.Time) string {
	num := strings.TrimSpace(invoiceNumber)
	if num == "" {
		num = referenceUnknown
	}
	return fmt.Sprintf("%s-%s-%s", referencePrefix, num, at.UTC().Format(referenceTimeFmt))
}

// IdempotencyKey identifies an invoice for payment purposes. Invoices without
// a number also fold their line items into the key.
func IdempotencyKey(inv *entity.Invoice) string {
	number := strings.TrimSpace(inv.InvoiceNumber)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.2f", strings.TrimSpace(inv.Vendor), number, inv.Amount)
	if number == "" {
		for _, li := range inv.LineItems {
			fmt.Fprintf(h, "|%s:%d:%s:%s", strings.TrimSpace(li.Item), li.Quantity, optionalAmount(li.UnitPrice), optionalAmount(li.Amount))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Deduplicated reports whether the gate consults the ledger for inv; only
// numbered invoices are.
func Deduplicated(inv *entity.Invoice) bool {
	return strings.TrimSpace(inv.InvoiceNumber) != ""
}

func optionalAmount(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// Gate invokes the executor only for approved invoices
type Gate struct {
	executor port.PaymentExecutor
	ledger   port.PaymentLedger
	now      func() time.Time
	logger   *zap.Logger
	disabled bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGate creates a payment gate. A nil ledger disables duplicate detection.
func NewGate(executor port.PaymentExecutor, ledger port.PaymentLedger, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		executor: executor,
		ledger:   ledger,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the timestamp source
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// WithPaymentsDisabled makes approved invoices SKIPPED without calling the executor
func (g *Gate) WithPaymentsDisabled() *Gate {
	g.disabled = true
	return g
}

// Process branches only on decision.Approved and decision.Reasons
func (g *Gate) Process(ctx context.Context, inv *entity.Invoice, decision *entity.FinalDecision) entity.PaymentResult {
	result := entity.PaymentResult{
		Status:    entity.PaymentSkipped,
		Currency:  entity.DefaultCurrency,
		Timestamp: g.now(),
	}
	if inv != nil {
		result.Vendor = inv.Vendor
		result.Amount = inv.Amount
		if inv.Currency != "" {
			result.Currency = inv.Currency
		}
	}

	switch {
	case decision == nil:
		result.Reason = reasonNoDecision
		g.logger.Warn("Payment skipped", zap.String("reason", result.Reason))
		return result
	case !decision.Approved:
		result.Reason = rejectionReason(decision.Reasons)
		g.logger.Info("Payment skipped",
			zap.String("vendor", result.Vendor),
			zap.String("reason", result.Reason))
		return result
	case inv == nil:
		result.Reason = reasonNoInvoice
		g.logger.Warn("Payment skipped", zap.String("reason", result.Reason))
		return result
	case g.disabled:
		result.Reason = reasonDisabled
		g.logger.Info("Payment skipped", zap.String("vendor", result.Vendor), zap.String("reason", result.Reason))
		return result
	}

	key := IdempotencyKey(inv)
	lock := g.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	dedupe := g.ledger != nil && Deduplicated(inv)
	if dedupe {
		prior, err := g.ledger.Find(ctx, key)
		if err != nil {
			result.Status = entity.PaymentFailed
			result.Reason = fmt.Sprintf("payment ledger lookup failed: %v", err)
			g.logger.Error("Payment ledger lookup failed", zap.Error(err))
			return result
		}
		if prior != nil && prior.Status == entity.PaymentPaid {
			dup := *prior
			dup.Duplicate = true
			dup.Reason = reasonAlreadyPaid
			g.logger.Info("Payment already recorded",
				zap.String("vendor", dup.Vendor),
				zap.String("reference_id", dup.ReferenceID))
			return dup
		}
	}

	ref, err := g.executor.Execute(ctx, port.PaymentRequest{
		IdempotencyKey: key,
		Vendor:         inv.Vendor,
		InvoiceNumber:  inv.InvoiceNumber,
		Amount:         inv.Amount,
		Currency:       result.Currency,
	})
	result.Timestamp = g.now()
	if err != nil {
		result.Status = entity.PaymentFailed
		result.Reason = fmt.Errorf("%w: %v", ErrExecutorFailed, err).Error()
		g.logger.Error("Payment execution failed",
			zap.String("vendor", inv.Vendor),
			zap.Error(err))
		return result
	}
	if ref == "" {
		ref = ReferenceID(inv.InvoiceNumber, result.Timestamp)
	}

	result.Status = entity.PaymentPaid
	result.ReferenceID = ref
	result.Reason = reasonPaid

	if dedupe {
		if err := g.ledger.Record(ctx, key, &result); err != nil {
			g.logger.Error("Failed to record payment", zap.String("reference_id", ref), zap.Error(err))
		}
	}

	g.logger.Info("Payment executed",
		zap.String("vendor", inv.Vendor),
		zap.Float64("amount", inv.Amount),
		zap.String("reference_id", ref))
	return result
}

func (g *Gate) keyLock(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

func rejectionReason(reasons []string) string {
	if len(reasons) == 0 {
		return reasonRejected
	}
	return reasonRejected + ": " + strings.Join(reasons, "; ")
}
