package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "XAI_API_KEY", "LARK_APP_ID", "LARK_APP_SECRET", "LARK_NOTIFY_CHAT_ID", "INVOICE_CRITIQUE_BACKEND"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.01, cfg.Validation.AbsoluteTolerance)
	assert.Equal(t, 0.005, cfg.Validation.RelativeTolerance)
	assert.Equal(t, "v1_rule_based", cfg.Approval.PolicyName)
	assert.Equal(t, 10000.0, cfg.Approval.AmountThreshold)
	assert.True(t, cfg.Approval.ReflectionEnabled)
	assert.Equal(t, CritiqueMock, cfg.Critique.Backend)
	assert.Equal(t, 20*time.Second, cfg.Critique.Timeout)
	assert.Equal(t, 5000.0, cfg.Critique.SecondLookMinAmount)
	assert.Equal(t, 1, cfg.Critique.SecondLookMaxWarnings)
	assert.Equal(t, []string{"suspicious_vendor", "unknown_vendor"}, cfg.Critique.SecondLookCodes)
	assert.True(t, cfg.Payment.Enabled)
	assert.Equal(t, "data/invoices", cfg.Ingest.SamplesDir)
	assert.Equal(t, "out", cfg.Ingest.OutputDir)
	assert.Equal(t, SnapshotDatabase, cfg.Snapshot.Source)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LARK_APP_ID", "cli_a")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("LARK_NOTIFY_CHAT_ID", "oc_1")

	path := writeConfig(t, `
server:
  port: 9090
approval:
  amount_threshold: 2500
  reflection_enabled: false
critique:
  backend: openai
  timeout: 5s
openai:
  model: gpt-4o-mini
lark:
  notify: true
snapshot:
  source: seed
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2500.0, cfg.Approval.AmountThreshold)
	assert.False(t, cfg.Approval.ReflectionEnabled)
	assert.Equal(t, CritiqueOpenAI, cfg.Critique.Backend)
	assert.Equal(t, 5*time.Second, cfg.Critique.Timeout)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "openai", cfg.OpenAI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "cli_a", cfg.Lark.AppID)
	assert.Equal(t, "oc_1", cfg.Lark.NotifyChatID)
}

func TestLoad_XAIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("XAI_API_KEY", "xai-test")

	cfg, err := Load(writeConfig(t, "critique:\n  backend: openai\n"))
	require.NoError(t, err)
	assert.Equal(t, "xai-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "grok", cfg.OpenAI.Provider)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "critique:\n  backend: openai\n"))
	assert.ErrorContains(t, err, "requires openai.api_key")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"negative absolute tolerance", func(c *Config) { c.Validation.AbsoluteTolerance = -0.01 }, "tolerances"},
		{"negative relative tolerance", func(c *Config) { c.Validation.RelativeTolerance = -1 }, "tolerances"},
		{"negative threshold", func(c *Config) { c.Approval.AmountThreshold = -1 }, "amount_threshold"},
		{"unknown backend", func(c *Config) { c.Critique.Backend = "oracle" }, "unknown critique backend"},
		{"openai without key", func(c *Config) { c.Critique.Backend = CritiqueOpenAI }, "api_key"},
		{"unknown provider", func(c *Config) {
			c.Critique.Backend = CritiqueOpenAI
			c.OpenAI.APIKey = "k"
			c.OpenAI.Provider = "other"
		}, "provider"},
		{"unknown snapshot source", func(c *Config) { c.Snapshot.Source = "s3" }, "snapshot source"},
		{"yaml snapshot without path", func(c *Config) {
			c.Snapshot.Source = SnapshotYAML
			c.Snapshot.Path = ""
		}, "snapshot.path"},
		{"lark without credentials", func(c *Config) { c.Lark.Notify = true }, "app_id"},
		{"commands without credentials", func(c *Config) { c.Lark.Commands = true }, "lark.commands"},
		{"lark without chat", func(c *Config) {
			c.Lark.Notify = true
			c.Lark.AppID, c.Lark.AppSecret = "a", "s"
		}, "notify_chat_id"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
