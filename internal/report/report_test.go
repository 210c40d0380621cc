package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

func sampleResults() []*entity.PipelineResult {
	return []*entity.PipelineResult{
		{
			RunID:       "run-1",
			InvoicePath: "data/invoices/invoice_1001.json",
			Invoice:     &entity.Invoice{Vendor: "Widgets Inc.", InvoiceNumber: "INV-1001", Amount: 5000, Currency: "USD"},
			Summary:     &entity.SeveritySummary{},
			Decision: &entity.FinalDecision{
				Approved: true,
				Critique: &entity.Critique{Backend: entity.BackendMock},
			},
			Payment: &entity.PaymentResult{Status: entity.PaymentPaid, ReferenceID: "TXN-INV-1001-20260101000000"},
		},
		{
			RunID:       "run-2",
			InvoicePath: "data/invoices/invoice_1002.txt",
			Invoice:     &entity.Invoice{Vendor: "NoProd Industries", Amount: 12000, Currency: "USD"},
			Findings:    []entity.Finding{{Code: entity.CodeUnknownItem, Severity: entity.SeverityError}},
			Summary:     &entity.SeveritySummary{Error: 1, HasBlocking: true},
			Decision:    &entity.FinalDecision{RevisionApplied: true},
			Payment:     &entity.PaymentResult{Status: entity.PaymentSkipped},
		},
		{
			RunID:         "run-3",
			InvoicePath:   "data/invoices/broken.csv",
			InternalError: "contract violation: negative amount",
		},
	}
}

func TestResultFileName(t *testing.T) {
	assert.Equal(t, "invoice_1001.json", ResultFileName(&entity.PipelineResult{InvoicePath: "a/b/invoice_1001.pdf"}))
	assert.Equal(t, "run-9.json", ResultFileName(&entity.PipelineResult{RunID: "run-9"}))
}

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res := sampleResults()[0]

	path, err := WriteJSON(dir, res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "invoice_1001.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Contains(t, decoded, "approval_decision")
	assert.Contains(t, decoded, "payment_result")

	_, err = WriteJSON(dir, nil)
	assert.Error(t, err)
}

func TestTally(t *testing.T) {
	got := Tally(sampleResults())
	assert.Equal(t, Totals{Invoices: 3, Approved: 1, Paid: 1, Failed: 1}, got)
}

func TestNewRow(t *testing.T) {
	rows := sampleResults()

	r := NewRow(rows[1])
	assert.Equal(t, "invoice_1002.txt", r.File)
	assert.False(t, r.Approved)
	assert.True(t, r.Revised)
	assert.Equal(t, 1, r.Blocking)
	assert.Equal(t, "SKIPPED", r.Payment)

	r = NewRow(rows[2])
	assert.Equal(t, "broken.csv", r.File)
	assert.Empty(t, r.Vendor)
	assert.Equal(t, "contract violation: negative amount", r.Error)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleResults()))

	out := buf.String()
	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "invoice_1001.json")
	assert.Contains(t, out, "$5,000.00")
	assert.Contains(t, out, "revised on reflection")
	assert.Contains(t, out, "3 invoices: 1 approved, 1 paid, 1 failed")
}

func TestWriteSummaryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteSummaryXLSX(path, sampleResults()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "File", rows[0][0])
	assert.Equal(t, "invoice_1001.json", rows[1][0])
	assert.Equal(t, "Widgets Inc.", rows[1][1])
	assert.Equal(t, "yes", rows[1][5])
	assert.Equal(t, "PAID", rows[1][7])
	assert.Equal(t, "broken.csv", rows[3][0])
}

func TestWriteSummaryXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteSummaryXLSX(path, nil))
	assert.FileExists(t, path)
}
