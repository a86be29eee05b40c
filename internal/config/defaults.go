package config

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultDataRoot        = "data"
	defaultResultsDB       = "data/results.db"
	defaultMarketName      = "binance"
	defaultMarketREST      = "https://fapi.binance.com"
	defaultMarketTimeout   = 15
	defaultInitialCash     = 10000
	defaultMaxConcurrent   = 1
	defaultDealMode        = "next_bar_open"
	defaultRateLimitPerMin = 480
	defaultMaxBatch        = 1000
	defaultStrategyFile    = "configs/strategies.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Data.Root == "" {
		c.Data.Root = defaultDataRoot
	}
	if c.Data.ResultsDB == "" {
		c.Data.ResultsDB = defaultResultsDB
	}
	if c.Market.Name == "" {
		c.Market.Name = defaultMarketName
	}
	if c.Market.RESTBaseURL == "" {
		c.Market.RESTBaseURL = defaultMarketREST
	}
	if c.Market.TimeoutSeconds <= 0 {
		c.Market.TimeoutSeconds = defaultMarketTimeout
	}
	if c.Backtest.InitialCash <= 0 {
		c.Backtest.InitialCash = defaultInitialCash
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Backtest.DealMode == "" {
		c.Backtest.DealMode = defaultDealMode
	}
	if c.Backtest.RateLimitPerMin <= 0 {
		c.Backtest.RateLimitPerMin = defaultRateLimitPerMin
	}
	if c.Backtest.MaxBatch <= 0 {
		c.Backtest.MaxBatch = defaultMaxBatch
	}
	if c.Strategy.File == "" {
		c.Strategy.File = defaultStrategyFile
	}
}
