package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
exchange:
  pair: "BTC/USD"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "BTC/USD", cfg.Exchange.Pair)
	assert.Equal(t, 0.5, cfg.Exchange.TickSize)
	assert.Equal(t, 0.005, cfg.Exchange.Change)
	assert.Equal(t, 4, cfg.Exchange.Quota)
	assert.Equal(t, 10.0, cfg.Exchange.OrderCryptoMin)
	assert.Equal(t, 5, cfg.Exchange.TradeTrials)
	assert.Equal(t, time.Second, cfg.CycleInterval())
	assert.Equal(t, 5*time.Second, cfg.RetryDelay())
	assert.Equal(t, 20, cfg.Engine.MAShortDays)
	assert.Equal(t, 100, cfg.Engine.MALongDays)
	assert.Equal(t, "ladderbot.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
exchange:
  pair: "ETH/USD"
  inverse_quoted: true
  tick_size: 0.05
  change: 0.01
  auto_quota: true
  auto_leverage: true
  mm_stop_buy: 2.5
  stop_on_top: 120000
  close_on_stop: true
engine:
  interval_seconds: 10
  ma_short_days: 10
  ma_long_days: 50
storage:
  dsn: "/tmp/ladder.db"
metrics:
  addr: ":9091"
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETH/USD", cfg.Exchange.Pair)
	assert.True(t, cfg.Exchange.InverseQuoted)
	assert.True(t, cfg.Exchange.AutoQuota)
	assert.True(t, cfg.Exchange.AutoLeverage)
	assert.Equal(t, 2.5, cfg.Exchange.MMStopBuy)
	assert.Equal(t, 120000.0, cfg.Exchange.StopOnTop)
	assert.True(t, cfg.Exchange.CloseOnStop)
	assert.Equal(t, 10*time.Second, cfg.CycleInterval())
	assert.Equal(t, "/tmp/ladder.db", cfg.Storage.DSN)
	assert.Equal(t, ":9091", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_RejectsBadLeverageOrdering(t *testing.T) {
	path := writeConfig(t, `
exchange:
  leverage_low: 3
  leverage_default: 2
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadMayerBands(t *testing.T) {
	path := writeConfig(t, `
exchange:
  mm_floor: 2.0
  mm_ceil: 1.5
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadMovingAverageWindows(t *testing.T) {
	path := writeConfig(t, `
engine:
  ma_short_days: 100
  ma_long_days: 20
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LADDERBOT_PAIR", "SOL/USD")
	t.Setenv("LADDERBOT_DSN", "/tmp/override.db")

	path := writeConfig(t, `
exchange:
  pair: "BTC/USD"
storage:
  dsn: "original.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SOL/USD", cfg.Exchange.Pair)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DSN)
}
