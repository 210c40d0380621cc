package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/dispatcher"
	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/approval"
	"github.com/garyjia/invoice-pipeline/internal/config"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/external/lark"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/external/openai"
	"github.com/garyjia/invoice-pipeline/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-pipeline/internal/ingest"
	"github.com/garyjia/invoice-pipeline/internal/interfaces/websocket"
	"github.com/garyjia/invoice-pipeline/internal/payment"
	"github.com/garyjia/invoice-pipeline/internal/pipeline"
	"github.com/garyjia/invoice-pipeline/internal/snapshot"
	"github.com/garyjia/invoice-pipeline/internal/validation"
	"github.com/garyjia/invoice-pipeline/pkg/database"
)

// DatabaseBundle holds the opened database and its repositories
type DatabaseBundle struct {
	Conn      *database.DB
	DB        *sqlite.DB
	Inventory *sqlite.InventoryRepository
	Results   *sqlite.ResultRepository
	Ledger    *sqlite.PaymentLedger
	Applied   int
	Seeded    int
}

// ProvideDatabase opens SQLite, applies pending migrations and, when
// configured, inserts any missing seed rows.
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(conn, logger).Run(database.Migrations())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := sqlite.NewDB(conn.DB, logger)
	bundle := &DatabaseBundle{
		Conn:      conn,
		DB:        db,
		Inventory: sqlite.NewInventoryRepository(db, logger),
		Results:   sqlite.NewResultRepository(db, logger),
		Ledger:    sqlite.NewPaymentLedger(db),
		Applied:   applied,
	}

	if cfg.SeedOnInit {
		seeded, err := bundle.Inventory.Seed(ctx, snapshot.SeedItems(), snapshot.SeedVendors())
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to seed inventory: %w", err)
		}
		bundle.Seeded = seeded
	}
	return bundle, nil
}

// ProvideSnapshotSource picks where each run's inventory and vendor data come from
func ProvideSnapshotSource(cfg config.SnapshotConfig, inventory *sqlite.InventoryRepository) (pipeline.SnapshotSource, error) {
	switch cfg.Source {
	case config.SnapshotDatabase:
		if inventory == nil {
			return nil, fmt.Errorf("snapshot source %q needs a database", cfg.Source)
		}
		return inventory, nil
	case config.SnapshotYAML:
		path := cfg.Path
		return pipeline.SnapshotFunc(func(ctx context.Context) (port.SnapshotProvider, error) {
			return snapshot.LoadYAML(path)
		}), nil
	case config.SnapshotSeed:
		return pipeline.StaticSnapshot(snapshot.Seed()), nil
	default:
		return nil, fmt.Errorf("unknown snapshot source %q", cfg.Source)
	}
}

// CritiqueSelection is the configured critique backend, its name, and the
// deterministic critic that stands in when it fails.
type CritiqueSelection struct {
	Backend  port.CritiqueBackend
	Name     string
	Fallback *approval.DeterministicCritic
}

// ProvideCritique selects the critique backend named by configuration
func ProvideCritique(cfg *config.Config, logger *zap.Logger) (CritiqueSelection, error) {
	codes := make([]entity.FindingCode, 0, len(cfg.Critique.SecondLookCodes))
	for _, c := range cfg.Critique.SecondLookCodes {
		codes = append(codes, entity.FindingCode(c))
	}
	fallback := approval.NewDeterministicCritic(approval.SecondLookConfig{
		MinAmount:   cfg.Critique.SecondLookMinAmount,
		MaxWarnings: cfg.Critique.SecondLookMaxWarnings,
		Codes:       codes,
	})

	switch cfg.Critique.Backend {
	case config.CritiqueMock:
		return CritiqueSelection{Backend: fallback, Name: fallback.Name(), Fallback: fallback}, nil
	case config.CritiqueOpenAI:
		critic, err := openai.NewCritic(openai.Config{
			Backend:     cfg.OpenAI.Provider,
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			PromptsPath: cfg.OpenAI.PromptsPath,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
		}, logger.Named("critique"))
		if err != nil {
			return CritiqueSelection{}, err
		}
		return CritiqueSelection{Backend: critic, Name: critic.Name(), Fallback: fallback}, nil
	default:
		return CritiqueSelection{}, fmt.Errorf("unknown critique backend %q", cfg.Critique.Backend)
	}
}

// ProvideNotifier returns a Lark decision notifier, or nil when notifications are off
func ProvideNotifier(cfg config.LarkConfig, logger *zap.Logger) (port.DecisionNotifier, error) {
	if !cfg.Notify {
		return nil, nil
	}
	larkCfg := lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		ReceiveID: cfg.NotifyChatID,
	}
	if !larkCfg.Enabled() {
		return nil, lark.ErrNotConfigured
	}
	notifier, err := lark.NewNotifier(lark.NewSDKClient(larkCfg, logger), larkCfg, logger.Named("lark"))
	if err != nil {
		return nil, err
	}
	return notifier, nil
}

// ProvideCommandListener builds the Lark chat command listener
func ProvideCommandListener(cfg config.LarkConfig, runner *pipeline.Runner, samples port.DocumentStore, results port.ResultRepository, logger *zap.Logger) *websocket.LarkAdapter {
	sender := lark.NewSDKClient(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	return websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, websocket.NewCommands(runner, samples, results), sender, logger.Named("commands"))
}

// ProvideGate builds the payment gate around the simulated executor
func ProvideGate(cfg config.PaymentConfig, ledger port.PaymentLedger, logger *zap.Logger) *payment.Gate {
	gate := payment.NewGate(payment.NewMockExecutor(logger), ledger, logger.Named("payment"))
	if !cfg.Enabled {
		gate.WithPaymentsDisabled()
	}
	return gate
}

// ProvideIngestor builds the document ingestor
func ProvideIngestor(cfg config.IngestConfig, logger *zap.Logger) *ingest.Ingestor {
	var opts []ingest.Option
	if cfg.MaxBytes > 0 {
		opts = append(opts, ingest.WithMaxBytes(cfg.MaxBytes))
	}
	if cfg.MaxPDFPages > 0 {
		opts = append(opts, ingest.WithMaxPDFPages(cfg.MaxPDFPages))
	}
	return ingest.New(logger.Named("ingest"), opts...)
}

// ProvideDispatcher creates the event dispatcher with the audit log and notifier subscribed
func ProvideDispatcher(notifier port.DecisionNotifier, logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(dispatcher.ZapLogger(logger)))
	pipeline.Subscribe(d, logger.Named("audit"), notifier)
	return d
}

// RunnerDeps are the collaborators of the pipeline runner
type RunnerDeps struct {
	Config     *config.Config
	Ingestor   *ingest.Ingestor
	Snapshots  pipeline.SnapshotSource
	Critique   CritiqueSelection
	Gate       pipeline.PaymentGate
	Results    port.ResultRepository
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideRunner assembles the rule engine, policy and reflection controller into a runner
func ProvideRunner(deps RunnerDeps) *pipeline.Runner {
	cfg := deps.Config

	engine := validation.NewEngine(validation.Config{
		Tolerance: validation.Tolerance{
			Absolute: cfg.Validation.AbsoluteTolerance,
			Relative: cfg.Validation.RelativeTolerance,
		},
	})
	policy := approval.NewPolicy(approval.PolicyConfig{
		Name:            cfg.Approval.PolicyName,
		AmountThreshold: cfg.Approval.AmountThreshold,
	}, nil)
	controller := approval.NewController(approval.ControllerConfig{
		PolicyName:        cfg.Approval.PolicyName,
		ReflectionEnabled: cfg.Approval.ReflectionEnabled,
		CritiqueTimeout:   cfg.Critique.Timeout,
		BackendName:       deps.Critique.Name,
	}, deps.Critique.Backend, deps.Critique.Fallback, nil, deps.Logger.Named("reflection"))

	opts := []pipeline.Option{pipeline.WithDispatcher(deps.Dispatcher)}
	if deps.Results != nil {
		opts = append(opts, pipeline.WithResultRepository(deps.Results))
	}
	return pipeline.NewRunner(deps.Ingestor, deps.Snapshots, engine, policy, controller, deps.Gate, deps.Logger.Named("pipeline"), opts...)
}
