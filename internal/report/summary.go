package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

// Row is the one-line view of a pipeline result shared by every summary format
type Row struct {
	File      string
	Vendor    string
	Number    string
	Amount    float64
	Currency  string
	Approved  bool
	Revised   bool
	Payment   string
	Reference string
	Findings  int
	Blocking  int
	Backend   string
	Error     string
}

// NewRow flattens a result. Failed runs keep their file name and error.
func NewRow(r *entity.PipelineResult) Row {
	row := Row{File: filepath.Base(r.InvoicePath), Findings: len(r.Findings), Error: r.InternalError}
	if inv := r.Invoice; inv != nil {
		row.Vendor = inv.Vendor
		row.Number = inv.InvoiceNumber
		row.Amount = inv.Amount
		row.Currency = inv.Currency
	}
	if r.Summary != nil {
		row.Blocking = r.Summary.Error
	}
	if d := r.Decision; d != nil {
		row.Approved = d.Approved
		row.Revised = d.RevisionApplied
		if d.Critique != nil {
			row.Backend = d.Critique.Backend
		}
	}
	if p := r.Payment; p != nil {
		row.Payment = string(p.Status)
		row.Reference = p.ReferenceID
	}
	if row.Error == "" && len(r.Errors) > 0 {
		row.Error = strings.Join(r.Errors, "; ")
	}
	return row
}

// Totals counts outcomes across a batch
type Totals struct {
	Invoices int
	Approved int
	Paid     int
	Failed   int
}

// Tally computes batch totals
func Tally(results []*entity.PipelineResult) Totals {
	t := Totals{Invoices: len(results)}
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Approved() {
			t.Approved++
		}
		if r.Paid() {
			t.Paid++
		}
		if r.Failed() {
			t.Failed++
		}
	}
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PrintSummary writes an aligned text table of results followed by totals
func PrintSummary(w io.Writer, results []*entity.PipelineResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tVENDOR\tAMOUNT\tAPPROVED\tPAYMENT\tFINDINGS\tNOTE")
	for _, r := range results {
		if r == nil {
			continue
		}
		row := NewRow(r)
		note := row.Error
		if note == "" && row.Revised {
			note = "revised on reflection"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			row.File, row.Vendor, utils.FormatMoney(row.Amount, row.Currency),
			yesNo(row.Approved), row.Payment, row.Findings, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	t := Tally(results)
	_, err := fmt.Fprintf(w, "\n%d invoices: %d approved, %d paid, %d failed\n", t.Invoices, t.Approved, t.Paid, t.Failed)
	return err
}
