// Package report writes pipeline results to disk for people to read.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// ResultFileName returns <stem>.json for the result's source document,
// falling back to the run id when there is no path.
func ResultFileName(result *entity.PipelineResult) string {
	stem := strings.TrimSuffix(filepath.Base(result.InvoicePath), filepath.Ext(result.InvoicePath))
	if result.InvoicePath == "" || stem == "" || stem == "." {
		stem = result.RunID
	}
	return stem + ".json"
}

// WriteJSON writes one indented result file into dir and returns its path
func WriteJSON(dir string, result *entity.PipelineResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil result")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	path := filepath.Join(dir, ResultFileName(result))
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}
	return path, nil
}
