// Command invoice-pipeline validates, approves and pays invoice documents.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/config"
	"github.com/garyjia/invoice-pipeline/internal/container"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

// Version is overridden at build time
var Version = "1.0.0"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	critique   string
	noPayment  bool
	logLevel   string
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "invoice-pipeline",
		Short:         "Ingest, validate, approve and pay invoices",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.critique, "critique", "", "critique backend override (mock, openai)")
	rootCmd.PersistentFlags().BoolVar(&flags.noPayment, "no-payment", false, "never execute payments")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override")

	rootCmd.AddCommand(runCmd(flags))
	rootCmd.AddCommand(runAllCmd(flags))
	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(initDBCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is a started container plus the logger built from its config
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	container *container.Container
}

// bootstrap loads configuration, applies flag overrides and starts the container
func bootstrap(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.critique != "" {
		cfg.Critique.Backend = flags.critique
	}
	if flags.noPayment {
		cfg.Payment.Enabled = false
	}
	if flags.logLevel != "" {
		cfg.Logger.Level = flags.logLevel
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, container: c}, nil
}

// Close stops the container and flushes the logger
func (a *app) Close() {
	if err := a.container.Close(); err != nil {
		a.logger.Warn("Shutdown finished with errors", zap.Error(err))
	}
	a.logger.Sync()
}
