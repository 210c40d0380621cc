// Package config loads application settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Critique backends
const (
	CritiqueMock   = "mock"
	CritiqueOpenAI = "openai"
)

// Snapshot sources
const (
	SnapshotDatabase = "database"
	SnapshotYAML     = "yaml"
	SnapshotSeed     = "seed"
)

// DefaultConfigPath is read when Load is given no path and the file exists
const DefaultConfigPath = "configs/config.yaml"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Validation ValidationConfig `mapstructure:"validation"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Critique   CritiqueConfig   `mapstructure:"critique"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Report     ReportConfig     `mapstructure:"report"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	Mode           string        `mapstructure:"mode"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	SeedOnInit      bool          `mapstructure:"seed_on_init"`
}

// SnapshotConfig selects where inventory and vendor data come from
type SnapshotConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// ValidationConfig holds the money comparison tolerance
type ValidationConfig struct {
	AbsoluteTolerance float64 `mapstructure:"absolute_tolerance"`
	RelativeTolerance float64 `mapstructure:"relative_tolerance"`
}

// ApprovalConfig holds policy settings
type ApprovalConfig struct {
	PolicyName        string  `mapstructure:"policy_name"`
	AmountThreshold   float64 `mapstructure:"amount_threshold"`
	ReflectionEnabled bool    `mapstructure:"reflection_enabled"`
}

// CritiqueConfig selects and tunes the critique backend
type CritiqueConfig struct {
	Backend               string        `mapstructure:"backend"`
	Timeout               time.Duration `mapstructure:"timeout"`
	SecondLookMinAmount   float64       `mapstructure:"second_look_min_amount"`
	SecondLookMaxWarnings int           `mapstructure:"second_look_max_warnings"`
	SecondLookCodes       []string      `mapstructure:"second_look_codes"`
}

// OpenAIConfig holds settings for the OpenAI-compatible critique endpoint
type OpenAIConfig struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	PromptsPath string  `mapstructure:"prompts_path"`
}

// PaymentConfig holds payment gate settings
type PaymentConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LarkConfig holds Lark notifier and chat command settings
type LarkConfig struct {
	Notify       bool   `mapstructure:"notify"`
	Commands     bool   `mapstructure:"commands"`
	AppID        string `mapstructure:"app_id"`
	AppSecret    string `mapstructure:"app_secret"`
	BaseURL      string `mapstructure:"base_url"`
	NotifyChatID string `mapstructure:"notify_chat_id"`
}

// IngestConfig holds document locations and ingestion limits
type IngestConfig struct {
	SamplesDir   string        `mapstructure:"samples_dir"`
	OutputDir    string        `mapstructure:"output_dir"`
	UploadDir    string        `mapstructure:"upload_dir"`
	InboxDir     string        `mapstructure:"inbox_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	MaxPDFPages  int           `mapstructure:"max_pdf_pages"`
	Workers      int           `mapstructure:"workers"`
}

// ReportConfig holds batch report settings
type ReportConfig struct {
	SummaryXLSX string `mapstructure:"summary_xlsx"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads .env (when present), then the YAML file, then the environment.
// An empty configPath reads DefaultConfigPath if it exists and defaults otherwise.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			configPath = DefaultConfigPath
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyKeyFallback()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "data/invoice_pipeline.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.seed_on_init", true)

	v.SetDefault("snapshot.source", SnapshotDatabase)
	v.SetDefault("snapshot.path", "data/snapshot.yaml")

	v.SetDefault("validation.absolute_tolerance", 0.01)
	v.SetDefault("validation.relative_tolerance", 0.005)

	v.SetDefault("approval.policy_name", "v1_rule_based")
	v.SetDefault("approval.amount_threshold", 10000.0)
	v.SetDefault("approval.reflection_enabled", true)

	v.SetDefault("critique.backend", CritiqueMock)
	v.SetDefault("critique.timeout", 20*time.Second)
	v.SetDefault("critique.second_look_min_amount", 5000.0)
	v.SetDefault("critique.second_look_max_warnings", 1)
	v.SetDefault("critique.second_look_codes", []string{"suspicious_vendor", "unknown_vendor"})

	v.SetDefault("openai.provider", "openai")

	v.SetDefault("payment.enabled", true)

	v.SetDefault("lark.notify", false)
	v.SetDefault("lark.commands", false)

	v.SetDefault("ingest.samples_dir", "data/invoices")
	v.SetDefault("ingest.output_dir", "out")
	v.SetDefault("ingest.upload_dir", "data/uploads")
	v.SetDefault("ingest.inbox_dir", "data/inbox")
	v.SetDefault("ingest.poll_interval", 10*time.Second)
	v.SetDefault("ingest.max_bytes", 10<<20)
	v.SetDefault("ingest.max_pdf_pages", 5)
	v.SetDefault("ingest.workers", 4)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "console")
}

func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep their conventional names
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.notify_chat_id", "LARK_NOTIFY_CHAT_ID")
}

// applyKeyFallback uses XAI_API_KEY when no OpenAI key is set, which also
// switches the provider to grok unless one was chosen explicitly.
func (c *Config) applyKeyFallback() {
	if c.OpenAI.APIKey != "" {
		return
	}
	if key := os.Getenv("XAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
		if c.OpenAI.Provider == "" || c.OpenAI.Provider == "openai" {
			c.OpenAI.Provider = "grok"
		}
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Validation.AbsoluteTolerance < 0 || c.Validation.RelativeTolerance < 0 {
		return fmt.Errorf("validation tolerances must not be negative")
	}
	if c.Approval.AmountThreshold < 0 {
		return fmt.Errorf("approval.amount_threshold must not be negative")
	}

	switch c.Critique.Backend {
	case CritiqueMock:
	case CritiqueOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("critique backend %q requires openai.api_key (OPENAI_API_KEY or XAI_API_KEY)", c.Critique.Backend)
		}
		switch c.OpenAI.Provider {
		case "", "openai", "grok":
		default:
			return fmt.Errorf("unknown openai.provider %q", c.OpenAI.Provider)
		}
	default:
		return fmt.Errorf("unknown critique backend %q", c.Critique.Backend)
	}
	if c.Critique.Timeout < 0 {
		return fmt.Errorf("critique.timeout must not be negative")
	}
	if c.Critique.SecondLookMinAmount < 0 || c.Critique.SecondLookMaxWarnings < 0 {
		return fmt.Errorf("critique second-look settings must not be negative")
	}

	switch c.Snapshot.Source {
	case SnapshotDatabase:
		if c.Database.Path == "" {
			return fmt.Errorf("snapshot source %q requires database.path", c.Snapshot.Source)
		}
	case SnapshotYAML:
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot source %q requires snapshot.path", c.Snapshot.Source)
		}
	case SnapshotSeed:
	default:
		return fmt.Errorf("unknown snapshot source %q", c.Snapshot.Source)
	}

	if c.Lark.Commands && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.commands requires lark.app_id and lark.app_secret")
	}
	if c.Lark.Notify {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.notify requires lark.app_id and lark.app_secret")
		}
		if c.Lark.NotifyChatID == "" {
			return fmt.Errorf("lark.notify requires lark.notify_chat_id")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("ingest.workers must not be negative")
	}
	return nil
}
