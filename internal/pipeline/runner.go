// Package pipeline runs invoices through ingest, validation, approval and payment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/dispatcher"
	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/approval"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/domain/event"
	"github.com/garyjia/invoice-pipeline/internal/validation"
)

// SnapshotSource materializes a point-in-time inventory and vendor view
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) (port.SnapshotProvider, error)
}

// SnapshotFunc adapts a function to SnapshotSource
type SnapshotFunc func(ctx context.Context) (port.SnapshotProvider, error)

func (f SnapshotFunc) LoadSnapshot(ctx context.Context) (port.SnapshotProvider, error) {
	return f(ctx)
}

// StaticSnapshot always serves the same snapshot
func StaticSnapshot(s port.SnapshotProvider) SnapshotSource {
	return SnapshotFunc(func(context.Context) (port.SnapshotProvider, error) {
		return s, nil
	})
}

// PaymentGate executes or skips payment for a final decision
type PaymentGate interface {
	Process(ctx context.Context, inv *entity.Invoice, decision *entity.FinalDecision) entity.PaymentResult
}

// Evaluation is the output of the decision core for one invoice
type Evaluation struct {
	Findings []entity.Finding
	Summary  entity.SeveritySummary
	Initial  entity.InitialDecision
	Final    entity.FinalDecision
}

// Runner wires the stages together. It is safe for concurrent use.
type Runner struct {
	ingestor   port.Ingestor
	snapshots  SnapshotSource
	engine     *validation.Engine
	policy     *approval.Policy
	controller *approval.Controller
	gate       PaymentGate

	results port.ResultRepository
	events  dispatcher.Dispatcher
	newID   func() string
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithResultRepository persists every result
func WithResultRepository(repo port.ResultRepository) Option {
	return func(r *Runner) {
		r.results = repo
	}
}

// WithDispatcher publishes stage events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(r *Runner) {
		r.events = d
	}
}

// WithIDGenerator overrides run id generation
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		r.newID = fn
	}
}

// WithClock overrides run timestamps
func WithClock(fn func() time.Time) Option {
	return func(r *Runner) {
		r.now = fn
	}
}

// NewRunner creates a pipeline runner
func NewRunner(
	ingestor port.Ingestor,
	snapshots SnapshotSource,
	engine *validation.Engine,
	policy *approval.Policy,
	controller *approval.Controller,
	gate PaymentGate,
	logger *zap.Logger,
	opts ...Option,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		ingestor:   ingestor,
		snapshots:  snapshots,
		engine:     engine,
		policy:     policy,
		controller: controller,
		gate:       gate,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate runs the decision core against a freshly loaded snapshot
func (r *Runner) Evaluate(ctx context.Context, inv *entity.Invoice) (*Evaluation, error) {
	snap, err := r.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return r.evaluate(ctx, inv, snap)
}

func (r *Runner) evaluate(ctx context.Context, inv *entity.Invoice, snap port.SnapshotProvider) (*Evaluation, error) {
	if inv == nil {
		return nil, fmt.Errorf("%w: nil invoice", entity.ErrContractViolation)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	findings := r.engine.Evaluate(inv, snap)
	summary, err := validation.Summarize(findings)
	if err != nil {
		return nil, err
	}
	initial := r.policy.Decide(inv, findings, summary)
	final, err := r.controller.Finalize(ctx, inv, findings, summary, initial)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Findings: findings, Summary: summary, Initial: initial, Final: final}, nil
}

// RunFile processes one invoice file. It never returns nil: failures are
// recorded on the result and a failed run never reaches payment.
func (r *Runner) RunFile(ctx context.Context, path string) *entity.PipelineResult {
	snap, err := r.snapshots.LoadSnapshot(ctx)
	return r.run(ctx, path, snap, err)
}

func (r *Runner) run(ctx context.Context, path string, snap port.SnapshotProvider, snapErr error) (result *entity.PipelineResult) {
	result = &entity.PipelineResult{
		RunID:       r.newID(),
		InvoicePath: path,
		Findings:    []entity.Finding{},
		Errors:      []string{},
		StartedAt:   r.now(),
	}
	log := r.logger.With(zap.String("run_id", result.RunID), zap.String("invoice_path", path))

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(ctx, log, result, fmt.Errorf("%w: panic: %v", errInternal, rec))
		}
		result.CompletedAt = r.now()
		r.persist(ctx, log, result)
		r.publish(ctx, event.NewEvent(event.TypeRunCompleted, result.RunID, path, map[string]interface{}{
			"approved": result.Approved(),
			"paid":     result.Paid(),
			"failed":   result.Failed(),
			"result":   result,
		}))
	}()

	log.Info("PIPELINE_START")

	log.Info("STAGE_START", zap.String("stage", "ingest"))
	inv, err := r.ingestor.Ingest(ctx, path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Ingestion error: %v", err))
	}
	if inv == nil {
		r.fail(ctx, log, result, fmt.Errorf("%w: ingestion returned no invoice", errInternal))
		return result
	}
	result.Invoice = inv
	r.publish(ctx, event.NewEvent(event.TypeInvoiceParsed, result.RunID, path, map[string]interface{}{
		"vendor":     inv.Vendor,
		"amount":     inv.Amount,
		"confidence": string(inv.Provenance.Confidence),
	}))
	log.Info("STAGE_END", zap.String("stage", "ingest"), zap.String("vendor", inv.Vendor))

	if snapErr != nil {
		r.fail(ctx, log, result, fmt.Errorf("%w: snapshot unavailable: %v", errInternal, snapErr))
		return result
	}

	log.Info("STAGE_START", zap.String("stage", "validate"))
	eval, err := r.evaluate(ctx, inv, snap)
	if err != nil {
		r.fail(ctx, log, result, err)
		return result
	}
	result.Findings = eval.Findings
	summary := eval.Summary
	result.Summary = &summary
	decision := eval.Final
	result.Decision = &decision
	r.publishDecision(ctx, result, eval)
	log.Info("STAGE_END", zap.String("stage", "approve"),
		zap.Int("findings", len(eval.Findings)),
		zap.Bool("approved", decision.Approved),
		zap.String("reflection_state", decision.ReflectionState))

	log.Info("STAGE_START", zap.String("stage", "pay"))
	payment := r.gate.Process(ctx, inv, result.Decision)
	result.Payment = &payment
	r.publish(ctx, event.NewEvent(event.TypePaymentProcessed, result.RunID, path, map[string]interface{}{
		"status":       string(payment.Status),
		"reference_id": payment.ReferenceID,
		"reason":       payment.Reason,
	}))
	log.Info("STAGE_END", zap.String("stage", "pay"), zap.String("status", string(payment.Status)))

	log.Info("PIPELINE_END",
		zap.Bool("approved", result.Approved()),
		zap.Bool("paid", result.Paid()))
	return result
}

var errInternal = errors.New("internal error")

// fail records an internal error. Nothing after it reaches payment.
func (r *Runner) fail(ctx context.Context, log *zap.Logger, result *entity.PipelineResult, err error) {
	result.InternalError = err.Error()
	result.Decision = nil
	result.Payment = nil
	log.Error("PIPELINE_FAILED", zap.Error(err))
	r.publish(ctx, event.NewEvent(event.TypeRunFailed, result.RunID, result.InvoicePath, map[string]interface{}{
		"error": err.Error(),
	}))
}

func (r *Runner) publishDecision(ctx context.Context, result *entity.PipelineResult, eval *Evaluation) {
	path := result.InvoicePath
	r.publish(ctx, event.NewEvent(event.TypeFindingsProduced, result.RunID, path, map[string]interface{}{
		"total":        eval.Summary.Total(),
		"has_blocking": eval.Summary.HasBlocking,
	}))
	r.publish(ctx, event.NewEvent(event.TypeInitialDecision, result.RunID, path, map[string]interface{}{
		"approved": eval.Initial.Approved,
		"reasons":  eval.Initial.Reasons,
	}))
	if eval.Final.Critique != nil {
		r.publish(ctx, event.NewEvent(event.TypeReflectionComplete, result.RunID, path, map[string]interface{}{
			"backend": eval.Final.Critique.Backend,
			"revised": eval.Final.Critique.Revised,
		}))
	}
	r.publish(ctx, event.NewEvent(event.TypeFinalDecision, result.RunID, path, map[string]interface{}{
		"approved":         eval.Final.Approved,
		"revision_applied": eval.Final.RevisionApplied,
		"reasons":          eval.Final.Reasons,
	}))
}

func (r *Runner) publish(ctx context.Context, evt *event.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Dispatch(ctx, evt); err != nil && !errors.Is(err, dispatcher.ErrClosed) {
		r.logger.Warn("Event subscriber failed",
			zap.String("event_type", evt.Type.String()),
			zap.String("run_id", evt.RunID),
			zap.Error(err))
	}
}

func (r *Runner) persist(ctx context.Context, log *zap.Logger, result *entity.PipelineResult) {
	if r.results == nil {
		return
	}
	if err := r.results.Save(ctx, result); err != nil {
		log.Error("Failed to persist result", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Persistence error: %v", err))
	}
}
