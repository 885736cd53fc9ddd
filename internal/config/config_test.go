package config

import (
	"binance-signal-bots-go/internal/models"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigJSONAppliesDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"symbols":["BTCUSDT"],"initial_balance":1000,"log":{"level":"debug"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, 1000.0, cfg.InitialBalance)
	assert.Equal(t, "5m", cfg.Interval)
	assert.Equal(t, 50, cfg.MinBars)
	assert.InDelta(t, 0.0015, cfg.TotalCostRate(), 1e-12)
	assert.Equal(t, 0.20, cfg.CircuitBreakerThreshold)
	assert.Equal(t, "debug", cfg.LogConfig.Level)
	assert.Equal(t, "console", cfg.LogConfig.Output)
	assert.Len(t, cfg.Bots, 10)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
symbols: [BTCUSDT, ETHUSDT]
taker_fee_rate: 0.002
slippage_rate: 0.001
bots:
  - name: trend
    kind: ema_adx
    symbols: [BTCUSDT]
    params:
      adx_threshold: 30
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Bots, 1)
	assert.Equal(t, "trend", cfg.Bots[0].Name)
	assert.Equal(t, 30.0, cfg.Bots[0].Param("adx_threshold", 25))
	assert.Equal(t, 12.0, cfg.Bots[0].Param("ema_short", 12))
	assert.InDelta(t, 0.003, cfg.TotalCostRate(), 1e-12)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeFile(t, "config.json", `{"symbols":`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &models.Config{}
	ApplyDefaults(cfg)
	cfg.CircuitBreakerThreshold = 1.5
	cfg.Bots = append(cfg.Bots, cfg.Bots[0])

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit_breaker_threshold")
	assert.Contains(t, err.Error(), "duplicate bot name")
}

func TestDefaultBotsHaveUniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, b := range DefaultBots() {
		assert.False(t, seen[b.Name], b.Name)
		seen[b.Name] = true
		assert.NotEmpty(t, b.Symbols)
	}
}
