package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestJSONOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Source("alerts").Info("Browser created", zap.Int("width", 800))
	logger.Debug("hidden")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"message":"Browser created"`)
	assert.Contains(t, out, `"logger":"source"`)
	assert.Contains(t, out, `"source":"alerts"`)
	assert.Contains(t, out, `"width":800`)
	assert.NotContains(t, out, "hidden")
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, "warn", logger.Level())

	logger.Component("engine").Info("first")
	require.NoError(t, logger.SetLevel("debug"))
	logger.Component("engine").Debug("second")
	assert.Error(t, logger.SetLevel("nope"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "second")
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig()
	assert.True(t, cfg.Development)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "console", encodingFormat(cfg.Development))
	assert.Equal(t, "json", encodingFormat(DefaultConfig().Development))
}

func TestNop(t *testing.T) {
	logger := NewNop()
	logger.Source("x").Error("dropped")
	assert.NoError(t, logger.Close())
}
