package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/container"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/storage"
	httpapi "github.com/garyjia/invoice-pipeline/internal/interfaces/http"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var noInbox bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, watch the inbox and answer chat commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			a.logger.Info("Starting invoice pipeline",
				zap.String("version", Version),
				zap.String("addr", cfg.Server.Addr()))

			samples := storage.NewLocalFileStorage(cfg.Ingest.SamplesDir, a.logger.Named("samples"))
			opts := container.WorkerOptions{PollInterval: cfg.Ingest.PollInterval, Samples: samples}
			if !noInbox && cfg.Ingest.InboxDir != "" {
				if err := os.MkdirAll(cfg.Ingest.InboxDir, 0755); err != nil {
					return err
				}
				opts.InboxDir = cfg.Ingest.InboxDir
			}
			if err := a.container.StartWorkers(ctx, opts); err != nil {
				return err
			}

			server := httpapi.NewServer(httpapi.ServerConfig{
				Host:         cfg.Server.Host,
				Port:         cfg.Server.Port,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				Mode:         cfg.Server.Mode,
			}, httpapi.Dependencies{
				Processor:      a.container.Runner(),
				Formats:        a.container.Ingestor(),
				Samples:        samples,
				Uploads:        storage.NewLocalFileStorage(cfg.Ingest.UploadDir, a.logger.Named("uploads")),
				Results:        a.container.Results(),
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				NewID:          uuid.NewString,
			}, a.logger.Sugar())

			err = server.Start(ctx)
			if err == nil || err == context.Canceled {
				a.logger.Info("Server exited")
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noInbox, "no-inbox", false, "do not watch the inbox directory")
	return cmd
}
