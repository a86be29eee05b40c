package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
app:
  env: prod
market:
  name: binance
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, "data", cfg.Data.Root)
	assert.Equal(t, "https://fapi.binance.com", cfg.Market.RESTBaseURL)
	assert.Equal(t, 15, cfg.Market.TimeoutSeconds)
	assert.Equal(t, 10000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, "next_bar_open", cfg.Backtest.DealMode)
	assert.Equal(t, 480, cfg.Backtest.RateLimitPerMin)
	assert.Equal(t, "configs/strategies.yaml", cfg.Strategy.File)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
app:
  log_level: debug
  http_addr: ":8080"
backtest:
  initial_cash: 50000
  deal_mode: this_bar_close
  max_concurrent: 4
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, 50000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, "this_bar_close", cfg.Backtest.DealMode)
	assert.Equal(t, 4, cfg.Backtest.MaxConcurrent)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"非法日志级别", "app:\n  log_level: verbose\n"},
		{"开了代理没给地址", "market:\n  proxy_enabled: true\n"},
		{"非法成交模式", "backtest:\n  deal_mode: yesterday\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validate(cfg))
	assert.Equal(t, "binance", cfg.Market.Name)
}
