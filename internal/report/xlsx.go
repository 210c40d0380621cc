package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// SummarySheet is the worksheet name used in summary workbooks
const SummarySheet = "Summary"

var summaryHeaders = []interface{}{
	"File", "Vendor", "Invoice Number", "Amount", "Currency", "Approved",
	"Revised", "Payment", "Reference", "Findings", "Blocking", "Critique Backend", "Error",
}

// WriteSummaryXLSX saves a one-sheet workbook with a row per result
func WriteSummaryXLSX(path string, results []*entity.PipelineResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := f.SetSheetRow(SummarySheet, "A1", &summaryHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(summaryHeaders))
	if err := f.SetCellStyle(SummarySheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	rowNum := 2
	for _, r := range results {
		if r == nil {
			continue
		}
		row := NewRow(r)
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		values := []interface{}{
			row.File, row.Vendor, row.Number, row.Amount, row.Currency, yesNo(row.Approved),
			yesNo(row.Revised), row.Payment, row.Reference, row.Findings, row.Blocking, row.Backend, row.Error,
		}
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}
		rowNum++
	}

	if rowNum > 2 {
		if err := f.SetCellStyle(SummarySheet, "D2", fmt.Sprintf("D%d", rowNum-1), amountStyle); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "C", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "D", lastCol, 14); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
