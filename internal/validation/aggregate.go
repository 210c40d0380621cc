package validation

import (
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Summarize reduces findings to severity counts and the blocking signal.
// A finding with an undefined severity is a contract violation.
func Summarize(findings []entity.Finding) (entity.SeveritySummary, error) {
	summary := entity.SeveritySummary{ByCode: map[entity.FindingCode]int{}}

	for _, f := range findings {
		if err := f.Validate(); err != nil {
			return entity.SeveritySummary{}, err
		}
		switch f.Severity {
		case entity.SeverityInfo:
			summary.Info++
		case entity.SeverityWarn:
			summary.Warn++
		case entity.SeverityError:
			summary.Error++
		}
		summary.ByCode[f.Code]++
	}

	summary.HasBlocking = summary.Error > 0
	return summary, nil
}

// BlockingCodes returns the distinct ERROR finding codes in first-seen order
func BlockingCodes(findings []entity.Finding) []entity.FindingCode {
	seen := map[entity.FindingCode]bool{}
	var codes []entity.FindingCode
	for _, f := range findings {
		if f.Severity == entity.SeverityError && !seen[f.Code] {
			seen[f.Code] = true
			codes = append(codes, f.Code)
		}
	}
	return codes
}
