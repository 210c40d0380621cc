package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/domain/workflow"
)

// DefaultCritiqueTimeout bounds the single critique call
const DefaultCritiqueTimeout = 20 * time.Second

const defaultBackendName = "custom"

// NoteLoosenRejected is recorded when a critique asks to approve a rejected invoice
const NoteLoosenRejected = "critique recommended approval of a rejected invoice; reflection never loosens a decision"

var errEmptyCritique = errors.New("critique backend returned no critique")

// ControllerConfig holds the reflection controller's tunables
type ControllerConfig struct {
	PolicyName        string
	ReflectionEnabled bool
	CritiqueTimeout   time.Duration
	// BackendName labels critiques that do not name their backend
	BackendName string
}

// DefaultControllerConfig enables reflection with the default timeout
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		PolicyName:        DefaultPolicyName,
		ReflectionEnabled: true,
		CritiqueTimeout:   DefaultCritiqueTimeout,
	}
}

// critiqueOutcome is the result of one critique attempt: either a critique
// or the reason the backend failed.
type critiqueOutcome struct {
	critique *entity.Critique
	failure  error
}

// Controller runs the reflection pass and is the only writer of FinalDecision
type Controller struct {
	cfg      ControllerConfig
	backend  port.CritiqueBackend
	fallback *DeterministicCritic
	clock    Clock
	logger   *zap.Logger
}

// NewController wires a critique backend with its deterministic fallback.
// A nil backend means the fallback is used directly.
func NewController(cfg ControllerConfig, backend port.CritiqueBackend, fallback *DeterministicCritic, clock Clock, logger *zap.Logger) *Controller {
	if fallback == nil {
		fallback = NewDeterministicCritic(DefaultSecondLookConfig())
	}
	if backend == nil {
		backend = fallback
		if cfg.BackendName == "" {
			cfg.BackendName = fallback.Name()
		}
	}
	if cfg.BackendName == "" {
		cfg.BackendName = defaultBackendName
	}
	if cfg.PolicyName == "" {
		cfg.PolicyName = DefaultPolicyName
	}
	if cfg.CritiqueTimeout <= 0 {
		cfg.CritiqueTimeout = DefaultCritiqueTimeout
	}
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, backend: backend, fallback: fallback, clock: clock, logger: logger}
}

// Backend returns the name of the configured critique backend
func (c *Controller) Backend() string {
	return c.cfg.BackendName
}

// Finalize runs at most one critique and builds the final decision.
// It returns an error only when the lifecycle itself is violated.
func (c *Controller) Finalize(ctx context.Context, inv *entity.Invoice, findings []entity.Finding, summary entity.SeveritySummary, initial entity.InitialDecision) (entity.FinalDecision, error) {
	machine := workflow.NewApprovalMachine()
	wctx := workflow.WithReflectionEnabled(ctx, c.cfg.ReflectionEnabled)

	if err := machine.Fire(wctx, workflow.TriggerDecide); err != nil {
		return entity.FinalDecision{}, fmt.Errorf("%w: %v", entity.ErrContractViolation, err)
	}

	var crit *entity.Critique
	if c.cfg.ReflectionEnabled {
		crit = c.critique(ctx, inv, initial, findings)
	}

	trigger := workflow.TriggerSkipReflection
	if crit != nil {
		trigger = workflow.TriggerReflect
	}
	if err := machine.Fire(wctx, trigger); err != nil {
		return entity.FinalDecision{}, fmt.Errorf("%w: %v", entity.ErrContractViolation, err)
	}

	approved, applied, note := revisionGate(initial, crit)

	reasons := append([]string{}, initial.Reasons...)
	if applied {
		if len(crit.RevisedReasons) > 0 {
			reasons = append(reasons, crit.RevisedReasons...)
		} else {
			reasons = append(reasons, "reflection: "+crit.Rationale)
		}
	}

	final := entity.FinalDecision{
		Approved:        approved,
		DecisionPolicy:  c.cfg.PolicyName,
		Reasons:         reasons,
		Summary:         summary.Clone(),
		InitialDecision: initial.Clone(),
		Critique:        crit.Clone(),
		ReflectionState: machine.State().String(),
		RevisionApplied: applied,
		RevisionNote:    note,
		FinalTimestamp:  c.clock(),
	}

	fields := []zap.Field{
		zap.Bool("initial_approved", initial.Approved),
		zap.Bool("final_approved", final.Approved),
		zap.String("reflection_state", final.ReflectionState),
		zap.Bool("revision_applied", applied),
	}
	if crit != nil {
		fields = append(fields, zap.String("backend", crit.Backend), zap.Bool("critique_revised", crit.Revised))
	}
	if note != "" {
		c.logger.Warn("Critique reversal ignored", append(fields, zap.String("note", note))...)
	} else {
		c.logger.Info("APPROVAL_REFLECTION", fields...)
	}

	return final, nil
}

// revisionGate honors a critique's reversal only when it moves approve to reject
func revisionGate(initial entity.InitialDecision, crit *entity.Critique) (approved, applied bool, note string) {
	if crit == nil || !crit.Revised {
		return initial.Approved, false, ""
	}
	if initial.Approved {
		return false, true, ""
	}
	return false, false, NoteLoosenRejected
}

// critique calls the configured backend once and substitutes the
// deterministic result on any failure.
func (c *Controller) critique(ctx context.Context, inv *entity.Invoice, initial entity.InitialDecision, findings []entity.Finding) *entity.Critique {
	out := c.call(ctx, inv, initial, findings)
	if out.failure == nil {
		return out.critique
	}

	c.logger.Warn("Critique backend failed, using deterministic fallback",
		zap.String("backend", c.cfg.BackendName),
		zap.Error(out.failure))

	crit := c.fallback.Evaluate(inv, initial, findings)
	crit.Backend = entity.BackendMockFallback
	crit.FallbackReason = out.failure.Error()
	return crit
}

func (c *Controller) call(ctx context.Context, inv *entity.Invoice, initial entity.InitialDecision, findings []entity.Finding) critiqueOutcome {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CritiqueTimeout)
	defer cancel()

	done := make(chan critiqueOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- critiqueOutcome{failure: fmt.Errorf("critique backend panic: %v", r)}
			}
		}()
		crit, err := c.backend.Critique(callCtx, inv, initial.Clone(), entity.CloneFindings(findings))
		switch {
		case err != nil:
			done <- critiqueOutcome{failure: err}
		case crit == nil:
			done <- critiqueOutcome{failure: errEmptyCritique}
		default:
			if crit.Backend == "" {
				crit.Backend = c.cfg.BackendName
			}
			done <- critiqueOutcome{critique: crit}
		}
	}()

	select {
	case out := <-done:
		return out
	case <-callCtx.Done():
		return critiqueOutcome{failure: fmt.Errorf("critique call aborted: %w", callCtx.Err())}
	}
}
