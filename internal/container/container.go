// Package container wires configuration into a ready-to-run invoice pipeline
// with ordered initialization and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/dispatcher"
	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/config"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/storage"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/worker"
	"github.com/garyjia/invoice-pipeline/internal/ingest"
	"github.com/garyjia/invoice-pipeline/internal/payment"
	"github.com/garyjia/invoice-pipeline/internal/pipeline"
)

// Container owns every long-lived component of the pipeline
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Data
	database *DatabaseBundle
	results  port.ResultRepository

	// Pipeline
	ingestor    *ingest.Ingestor
	backendName string
	notifier    port.DecisionNotifier
	dispatcher  dispatcher.Dispatcher
	runner      *pipeline.Runner

	// Workers
	workers *worker.Manager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates the configuration. Call Start to build components.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes components in dependency order:
// database, external clients, dispatcher, runner.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := c.initExternalClients(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	if err := c.initPipeline(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started",
		zap.String("critique_backend", c.backendName),
		zap.String("snapshot_source", c.config.Snapshot.Source),
		zap.Bool("persistence", c.results != nil),
		zap.Bool("notifications", c.notifier != nil))
	return nil
}

// needsDatabase reports whether any configured component reads or writes SQLite
func (c *Container) needsDatabase() bool {
	return c.config.Database.Path != "" || c.config.Snapshot.Source == config.SnapshotDatabase
}

func (c *Container) initDatabase(ctx context.Context) error {
	if !c.needsDatabase() {
		c.logger.Info("No database configured; results are not persisted")
		return nil
	}
	bundle, err := ProvideDatabase(ctx, c.config.Database, c.logger.Named("db"))
	if err != nil {
		return err
	}
	c.database = bundle
	c.results = bundle.Results
	c.logger.Info("Database initialized",
		zap.Int("migrations_applied", bundle.Applied),
		zap.Int("rows_seeded", bundle.Seeded))
	return nil
}

func (c *Container) initExternalClients() error {
	notifier, err := ProvideNotifier(c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.notifier = notifier
	return nil
}

func (c *Container) initPipeline() error {
	var inventory *sqlite.InventoryRepository
	if c.database != nil {
		inventory = c.database.Inventory
	}
	snapshots, err := ProvideSnapshotSource(c.config.Snapshot, inventory)
	if err != nil {
		return err
	}

	critique, err := ProvideCritique(c.config, c.logger)
	if err != nil {
		return err
	}
	c.backendName = critique.Name

	var ledger port.PaymentLedger = payment.NewMemoryLedger()
	if c.database != nil {
		ledger = c.database.Ledger
	}

	c.ingestor = ProvideIngestor(c.config.Ingest, c.logger)
	c.dispatcher = ProvideDispatcher(c.notifier, c.logger)
	c.runner = ProvideRunner(RunnerDeps{
		Config:     c.config,
		Ingestor:   c.ingestor,
		Snapshots:  snapshots,
		Critique:   critique,
		Gate:       ProvideGate(c.config.Payment, ledger, c.logger),
		Results:    c.results,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	return nil
}

// WorkerOptions selects the background workers StartWorkers runs
type WorkerOptions struct {
	// InboxDir enables the inbox worker when set
	InboxDir     string
	PollInterval time.Duration
	// Samples backs the chat "process" command; nil disables it
	Samples port.DocumentStore
}

// StartWorkers registers the inbox worker and, when lark.commands is set,
// the chat command listener, then starts them together.
func (c *Container) StartWorkers(ctx context.Context, opts WorkerOptions) error {
	if !c.ready.Load() {
		return fmt.Errorf("container not started")
	}

	c.mu.Lock()
	if c.workers != nil {
		c.mu.Unlock()
		return fmt.Errorf("workers already started")
	}
	c.workers = worker.NewManager(c.logger.Named("workers"))

	if opts.InboxDir != "" {
		store := storage.NewLocalFileStorage(opts.InboxDir, c.logger.Named("inbox"))
		c.workers.Register(worker.NewInboxWorker(worker.InboxConfig{
			PollInterval: opts.PollInterval,
			WatchDir:     opts.InboxDir,
			Extensions:   c.ingestor.SupportedExtensions(),
		}, store, c.runner, c.logger.Named("inbox")))
	}
	if c.config.Lark.Commands {
		c.workers.Register(ProvideCommandListener(c.config.Lark, c.runner, opts.Samples, c.results, c.logger))
	}
	workers := c.workers
	c.mu.Unlock()

	return workers.StartAll(ctx)
}

// Close shuts components down in reverse order of initialization
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	var errs error
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if err := c.closeDatabase(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
	}

	if errs != nil {
		c.logger.Error("Container closed with errors", zap.Error(errs))
		return errs
	}
	c.logger.Info("Container closed")
	return nil
}

func (c *Container) closeDatabase() error {
	if c.database == nil {
		return nil
	}
	err := c.database.Conn.Close()
	c.database = nil
	return err
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health checks the database and workers
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}

	switch {
	case c.database == nil:
		status.Components["database"] = ComponentHealth{Healthy: true, Message: "not configured"}
	default:
		if err := c.database.Conn.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	}

	if c.workers != nil {
		running := c.workers.IsRunning()
		status.Components["workers"] = ComponentHealth{
			Healthy: running,
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		}
		status.Overall = status.Overall && running
	}

	if c.runner == nil {
		status.Components["pipeline"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	} else {
		status.Components["pipeline"] = ComponentHealth{Healthy: true, Message: "critique backend: " + c.backendName}
	}
	return status
}

// Runner returns the pipeline runner
func (c *Container) Runner() *pipeline.Runner {
	return c.runner
}

// Ingestor returns the document ingestor
func (c *Container) Ingestor() *ingest.Ingestor {
	return c.ingestor
}

// Results returns the result store, or nil when results are not persisted
func (c *Container) Results() port.ResultRepository {
	return c.results
}

// Config returns the validated configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// DatabaseStats returns migrations applied and seed rows inserted by Start
func (c *Container) DatabaseStats() (applied, seeded int) {
	if c.database == nil {
		return 0, 0
	}
	return c.database.Applied, c.database.Seeded
}
