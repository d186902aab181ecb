package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
app:
  base_asset: USDC
exchange:
  name: mock
  fee_rate: 0.001
trading:
  target_pnl_pct: 1.0
  stop_loss_pct: 0.5
  trailing_stop_pct: 0.8
  min_profit_to_arm_pct: 1.0
  max_positions: 20
tax:
  short_term_rate: 0.40
  long_term_rate: 0.25
system:
  log_level: INFO
`

func TestLoadConfigValid(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "USDC", cfg.App.BaseAsset)
	assert.Equal(t, "mock", cfg.Exchange.Name)
	assert.Equal(t, 20, cfg.Trading.MaxPositions)
	// Defaults fill in omitted sections.
	assert.Equal(t, 180, cfg.Trading.ReconcileIntervalSeconds)
	assert.Equal(t, 24, cfg.Tax.LongTermHoldHours)
	assert.Equal(t, "BTCUSDT", cfg.RiskControl.ReferenceSymbol)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_AT_API_KEY", "key-from-env")
	t.Setenv("TEST_AT_SECRET", "secret-from-env")

	path := writeTempConfig(t, `
exchange:
  name: binance
  api_key: ${TEST_AT_API_KEY}
  secret_key: ${TEST_AT_SECRET}
trading:
  target_pnl_pct: 1.0
  stop_loss_pct: 0.5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Exchange.SecretKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown exchange", func(c *Config) { c.Exchange.Name = "kraken" }},
		{"binance without key", func(c *Config) { c.Exchange.Name = "binance"; c.Exchange.APIKey = "" }},
		{"negative fee", func(c *Config) { c.Exchange.FeeRate = -0.1 }},
		{"zero target", func(c *Config) { c.Trading.TargetPnLPct = 0 }},
		{"negative stop", func(c *Config) { c.Trading.StopLossPct = -1 }},
		{"too many positions", func(c *Config) { c.Trading.MaxPositions = 500 }},
		{"negative reserve", func(c *Config) { c.Trading.CashReserve = -5 }},
		{"tax rate over 1", func(c *Config) { c.Tax.ShortTermRate = 1.5 }},
		{"bad log level", func(c *Config) { c.System.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.APIKey = "verysecretapikey1234"
	cfg.Exchange.SecretKey = "anothersecretvalue99"

	out := cfg.String()
	assert.NotContains(t, out, "verysecretapikey1234")
	assert.NotContains(t, out, "anothersecretvalue99")
	assert.Contains(t, out, "very")
}
