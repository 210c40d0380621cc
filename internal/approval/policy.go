// Package approval implements the two-pass approval decision: a rule-based
// initial decision followed by one reflection pass that may only tighten it.
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/validation"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

const (
	DefaultPolicyName      = "v1_rule_based"
	DefaultAmountThreshold = 10000.0
)

// Reason prefixes recorded on initial decisions
const (
	ReasonBlocking      = "blocking validation errors present"
	ReasonOverThreshold = "amount exceeds review threshold"
	ReasonApproved      = "no blocking findings; within threshold"
)

// Clock supplies decision timestamps
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// PolicyConfig holds the approval policy's tunables
type PolicyConfig struct {
	Name            string
	AmountThreshold float64
}

// DefaultPolicyConfig returns the v1 rule-based policy settings
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Name:            DefaultPolicyName,
		AmountThreshold: DefaultAmountThreshold,
	}
}

// Policy produces initial decisions. Same inputs always give the same decision.
type Policy struct {
	cfg   PolicyConfig
	clock Clock
}

// NewPolicy creates a policy; a nil clock uses the system UTC clock
func NewPolicy(cfg PolicyConfig, clock Clock) *Policy {
	if cfg.Name == "" {
		cfg.Name = DefaultPolicyName
	}
	if clock == nil {
		clock = systemClock
	}
	return &Policy{cfg: cfg, clock: clock}
}

// Name returns the policy identifier recorded on final decisions
func (p *Policy) Name() string {
	return p.cfg.Name
}

// Threshold returns the strict review threshold
func (p *Policy) Threshold() float64 {
	return p.cfg.AmountThreshold
}

// Decide applies the rules in order. The first applicable rule sets the
// outcome; every applicable rule contributes a reason.
func (p *Policy) Decide(inv *entity.Invoice, findings []entity.Finding, summary entity.SeveritySummary) entity.InitialDecision {
	approved := true
	reasons := []string{}

	if summary.HasBlocking {
		approved = false
		codes := validation.BlockingCodes(findings)
		names := make([]string, len(codes))
		for i, c := range codes {
			names[i] = string(c)
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", ReasonBlocking, strings.Join(names, ", ")))
	}

	if inv.Amount > p.cfg.AmountThreshold {
		approved = false
		reasons = append(reasons, fmt.Sprintf("%s: %s > %s", ReasonOverThreshold,
			utils.FormatMoney(inv.Amount, inv.Currency), utils.FormatMoney(p.cfg.AmountThreshold, inv.Currency)))
	}

	if approved {
		reasons = append(reasons, ReasonApproved)
	}

	return entity.InitialDecision{
		Approved:  approved,
		Reasons:   reasons,
		Timestamp: p.clock(),
	}
}
