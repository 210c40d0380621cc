package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pipeline.log")

	logger, err := NewLogger(LoggerConfig{Level: "DEBUG", OutputPath: path, Format: "json"})
	require.NoError(t, err)
	logger.Debug("stage")
	logger.Info("PIPELINE_START")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "PIPELINE_START", entry["msg"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_LevelFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(LoggerConfig{Level: "loud", OutputPath: path, Format: "console"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNewLogger_UnknownFormat(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Format: "xml"})
	assert.Error(t, err)
}
