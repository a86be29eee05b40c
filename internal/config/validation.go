package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error")
	}
	if c.Market.Name == "" {
		return fmt.Errorf("market.name cannot be empty")
	}
	if c.Market.ProxyEnabled && c.Market.ProxyURL == "" {
		return fmt.Errorf("market.proxy_url is required when proxy is enabled")
	}
	switch c.Backtest.DealMode {
	case "next_bar_open", "this_bar_close":
	default:
		return fmt.Errorf("backtest.deal_mode must be next_bar_open or this_bar_close")
	}
	return nil
}
