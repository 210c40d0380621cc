package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

// SecondLookConfig bounds the one case in which the deterministic critic
// recommends turning an approval into a rejection.
type SecondLookConfig struct {
	MinAmount   float64
	MaxWarnings int
	Codes       []entity.FindingCode
}

// DefaultSecondLookConfig flags a lone vendor-risk warning on invoices of $5,000 or more
func DefaultSecondLookConfig() SecondLookConfig {
	return SecondLookConfig{
		MinAmount:   5000,
		MaxWarnings: 1,
		Codes:       []entity.FindingCode{entity.CodeSuspiciousVendor, entity.CodeUnknownVendor},
	}
}

// DeterministicCritic restates the policy's reasoning and recommends a
// reversal only for a contradiction or the configured second-look case.
type DeterministicCritic struct {
	cfg SecondLookConfig
}

// NewDeterministicCritic creates the default critique backend
func NewDeterministicCritic(cfg SecondLookConfig) *DeterministicCritic {
	return &DeterministicCritic{cfg: cfg}
}

var _ port.CritiqueBackend = (*DeterministicCritic)(nil)

// Name returns the backend identifier
func (c *DeterministicCritic) Name() string {
	return entity.BackendMock
}

// Critique never fails
func (c *DeterministicCritic) Critique(ctx context.Context, inv *entity.Invoice, initial entity.InitialDecision, findings []entity.Finding) (*entity.Critique, error) {
	return c.Evaluate(inv, initial, findings), nil
}

// Evaluate is the pure form of Critique
func (c *DeterministicCritic) Evaluate(inv *entity.Invoice, initial entity.InitialDecision, findings []entity.Finding) *entity.Critique {
	var errorCodes, warnCodes []string
	for _, f := range findings {
		switch f.Severity {
		case entity.SeverityError:
			errorCodes = append(errorCodes, string(f.Code))
		case entity.SeverityWarn:
			warnCodes = append(warnCodes, string(f.Code))
		}
	}

	crit := &entity.Critique{Backend: c.Name()}

	switch {
	case initial.Approved && len(errorCodes) > 0:
		crit.Revised = true
		crit.Rationale = fmt.Sprintf("Initial approval contradicts %d ERROR finding(s) (%s); the invoice must be rejected.",
			len(errorCodes), strings.Join(errorCodes, ", "))
		crit.RevisedReasons = []string{fmt.Sprintf("reflection: approved despite blocking findings: %s", strings.Join(errorCodes, ", "))}

	case initial.Approved && c.needsSecondLook(inv, findings, len(warnCodes)):
		crit.Revised = true
		crit.Rationale = fmt.Sprintf("Invoice of %s passed policy with only warning(s) (%s); a reviewer should take a second look before paying.",
			utils.FormatMoney(inv.Amount, inv.Currency), strings.Join(warnCodes, ", "))
		crit.RevisedReasons = []string{fmt.Sprintf("reflection: second look required for %s invoice with %s",
			utils.FormatMoney(inv.Amount, inv.Currency), strings.Join(warnCodes, ", "))}

	case initial.Approved:
		crit.Rationale = fmt.Sprintf("Initial approval is consistent with policy: %s.", strings.Join(initial.Reasons, "; "))

	default:
		crit.Rationale = fmt.Sprintf("Initial rejection is consistent with policy: %s.", strings.Join(initial.Reasons, "; "))
	}

	return crit
}

// needsSecondLook holds when every finding is a WARN from the configured
// codes, there are at most MaxWarnings of them, and the amount is high.
func (c *DeterministicCritic) needsSecondLook(inv *entity.Invoice, findings []entity.Finding, warnCount int) bool {
	if warnCount == 0 || warnCount > c.cfg.MaxWarnings || inv.Amount < c.cfg.MinAmount {
		return false
	}
	for _, f := range findings {
		if f.Severity != entity.SeverityWarn {
			continue
		}
		if !c.watches(f.Code) {
			return false
		}
	}
	return true
}

func (c *DeterministicCritic) watches(code entity.FindingCode) bool {
	for _, w := range c.cfg.Codes {
		if w == code {
			return true
		}
	}
	return false
}
