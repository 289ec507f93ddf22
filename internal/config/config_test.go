package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Pretty)

	limits, err := cfg.Risk.Limits()
	require.NoError(t, err)
	assert.Equal(t, "10000", limits.MaxOrderSize.String())
	assert.Equal(t, "100000", limits.MaxPositionSize.String())
	assert.Equal(t, "50000", limits.MaxDailyLoss.String())
	assert.Equal(t, "1000000", limits.MaxOrderValue.String())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: "127.0.0.1"
  port: 9100
  workers: 4
risk:
  max_order_size: "250.5"
logging:
  level: debug
  pretty: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)

	// Unset keys keep their defaults.
	limits, err := cfg.Risk.Limits()
	require.NoError(t, err)
	assert.Equal(t, "250.5", limits.MaxOrderSize.String())
	assert.Equal(t, "100000", limits.MaxPositionSize.String())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLimitsRejectBadDecimal(t *testing.T) {
	cfg := RiskConfig{
		MaxOrderSize:    "not-a-number",
		MaxPositionSize: "1",
		MaxDailyLoss:    "1",
		MaxOrderValue:   "1",
	}
	_, err := cfg.Limits()
	assert.ErrorContains(t, err, "max_order_size")
}
