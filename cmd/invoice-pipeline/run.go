package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/storage"
	"github.com/garyjia/invoice-pipeline/internal/report"
)

func runCmd(flags *globalFlags) *cobra.Command {
	var invoicePath, outputDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline on one invoice document",
		Example: `  invoice-pipeline run --invoice-path data/invoices/invoice_1001.json
  invoice-pipeline run --invoice-path scan.pdf --critique openai`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if outputDir == "" {
				outputDir = a.cfg.Ingest.OutputDir
			}

			result := a.container.Runner().RunFile(cmd.Context(), invoicePath)
			results := []*entity.PipelineResult{result}
			if err := writeResults(a, outputDir, results); err != nil {
				return err
			}
			if err := report.PrintSummary(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			return failures(results)
		},
	}
	cmd.Flags().StringVarP(&invoicePath, "invoice-path", "i", "", "invoice document to process")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for result JSON files")
	_ = cmd.MarkFlagRequired("invoice-path")
	return cmd
}

func runAllCmd(flags *globalFlags) *cobra.Command {
	var samplesDir, outputDir, xlsxPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run the pipeline on every supported document in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if samplesDir == "" {
				samplesDir = a.cfg.Ingest.SamplesDir
			}
			if outputDir == "" {
				outputDir = a.cfg.Ingest.OutputDir
			}
			if xlsxPath == "" {
				xlsxPath = a.cfg.Report.SummaryXLSX
			}
			if workers <= 0 {
				workers = a.cfg.Ingest.Workers
			}

			store := storage.NewLocalFileStorage(samplesDir, a.logger.Named("samples"))
			names, err := store.List(a.container.Ingestor().SupportedExtensions()...)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", samplesDir, err)
			}
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No invoice documents found in %s\n", samplesDir)
				return nil
			}

			paths := make([]string, len(names))
			for i, name := range names {
				paths[i] = filepath.Join(samplesDir, name)
			}

			results := a.container.Runner().RunBatch(cmd.Context(), paths, workers)
			if err := writeResults(a, outputDir, results); err != nil {
				return err
			}
			if xlsxPath != "" {
				if err := report.WriteSummaryXLSX(xlsxPath, results); err != nil {
					return err
				}
				a.logger.Info("Summary workbook written", zap.String("path", xlsxPath))
			}
			if err := report.PrintSummary(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			return failures(results)
		},
	}
	cmd.Flags().StringVarP(&samplesDir, "samples-dir", "d", "", "directory of invoice documents")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for result JSON files")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write a summary workbook to this path")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent invoices")
	return cmd
}

func writeResults(a *app, dir string, results []*entity.PipelineResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, r := range results {
		path, err := report.WriteJSON(dir, r)
		if err != nil {
			return err
		}
		a.logger.Debug("Result written", zap.String("run_id", r.RunID), zap.String("path", path))
	}
	return nil
}

func failures(results []*entity.PipelineResult) error {
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d invoice runs failed", failed, len(results))
	}
	return nil
}
