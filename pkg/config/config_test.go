package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.True(t, cfg.UseDiscoveredCCCD)
}

func TestLoad(t *testing.T) {
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("overrides defaults", func(t *testing.T) {
		path := writeConfig(t, "log_level: debug\nscan_timeout: 5s\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
		assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "absent fields keep defaults")
	})

	t.Run("invalid log level", func(t *testing.T) {
		path := writeConfig(t, "log_level: loud\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "invalid log level")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "log_level: [\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	cfg.LogLevel = "bogus"
	logger = cfg.NewLogger()
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel(), "bad level falls back to info")
}
