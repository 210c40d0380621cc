// Package websocket listens for chat commands on the Lark long connection
// and answers them from the pipeline and its result store.
package websocket

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/external/lark"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

const (
	defaultRecent = 5
	maxRecent     = 20
)

const helpText = `Commands:
status <run_id>   show the decision recorded for a run
recent [n]        list the latest runs
process <sample>  run the pipeline on a sample document
help              show this message`

// Processor runs the pipeline on a single document
type Processor interface {
	RunFile(ctx context.Context, path string) *entity.PipelineResult
}

// Commands answers text commands. Samples and Results may be nil, which
// disables the commands that need them.
type Commands struct {
	processor Processor
	samples   port.DocumentStore
	results   port.ResultRepository
}

// NewCommands creates a command set
func NewCommands(processor Processor, samples port.DocumentStore, results port.ResultRepository) *Commands {
	return &Commands{processor: processor, samples: samples, results: results}
}

// Execute runs one command line and returns the reply text
func (c *Commands) Execute(ctx context.Context, text string) string {
	fields := commandFields(text)
	if len(fields) == 0 {
		return helpText
	}

	switch strings.ToLower(fields[0]) {
	case "help":
		return helpText
	case "status":
		if len(fields) != 2 {
			return "usage: status <run_id>"
		}
		return c.status(ctx, fields[1])
	case "recent":
		n := defaultRecent
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return "usage: recent [n]"
			}
			n = min(v, maxRecent)
		}
		return c.recent(ctx, n)
	case "process":
		if len(fields) != 2 {
			return "usage: process <sample>"
		}
		return c.process(ctx, fields[1])
	default:
		return fmt.Sprintf("unknown command %q; try help", fields[0])
	}
}

func (c *Commands) status(ctx context.Context, runID string) string {
	if c.results == nil {
		return "results are not persisted"
	}
	result, err := c.results.GetByRunID(ctx, runID)
	if err != nil {
		return fmt.Sprintf("lookup failed: %v", err)
	}
	if result == nil {
		return fmt.Sprintf("no run %s", runID)
	}
	return lark.FormatDecision(result)
}

func (c *Commands) recent(ctx context.Context, n int) string {
	if c.results == nil {
		return "results are not persisted"
	}
	results, err := c.results.List(ctx, port.ResultFilter{Limit: n})
	if err != nil {
		return fmt.Sprintf("lookup failed: %v", err)
	}
	if len(results) == 0 {
		return "no runs recorded"
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(summaryLine(r))
	}
	return b.String()
}

func (c *Commands) process(ctx context.Context, name string) string {
	if c.samples == nil || c.processor == nil {
		return "processing is not available"
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "invalid sample name"
	}
	if !c.samples.Exists(name) {
		return fmt.Sprintf("sample %s not found", name)
	}
	path, err := c.samples.Resolve(name)
	if err != nil {
		return "invalid sample name"
	}
	result := c.processor.RunFile(ctx, path)
	if result == nil {
		return "pipeline returned no result"
	}
	return lark.FormatDecision(result)
}

func summaryLine(r *entity.PipelineResult) string {
	number, vendor, amount := "(no number)", "unknown vendor", "-"
	if inv := r.Invoice; inv != nil {
		if inv.InvoiceNumber != "" {
			number = inv.InvoiceNumber
		}
		vendor = inv.Vendor
		amount = utils.FormatMoney(inv.Amount, inv.Currency)
	}
	verdict := "REJECTED"
	switch {
	case r.Failed():
		verdict = "FAILED"
	case r.Approved():
		verdict = "APPROVED"
	}
	return fmt.Sprintf("%s %s %s %s %s", r.RunID, number, vendor, amount, verdict)
}

// commandFields splits a message into words, dropping @mention placeholders
func commandFields(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "@") {
			continue
		}
		out = append(out, f)
	}
	return out
}
