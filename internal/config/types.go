package config

// Config 是 Kelpie 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Market   MarketConfig   `toml:"market"`
	Backtest BacktestConfig `toml:"backtest"`
	Strategy StrategyConfig `toml:"strategy"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 指向本地数据目录：K 线库与结果库都在 Root 下。
type DataConfig struct {
	Root      string `toml:"root"`
	ResultsDB string `toml:"results_db"`
}

type MarketConfig struct {
	Name           string `toml:"name"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProxyEnabled   bool   `toml:"proxy_enabled"`
	ProxyURL       string `toml:"proxy_url"`
}

// BacktestConfig 是回测任务的服务端默认值。
type BacktestConfig struct {
	InitialCash     float64 `toml:"initial_cash"`
	MaxConcurrent   int     `toml:"max_concurrent"`
	DealMode        string  `toml:"deal_mode"`
	RateLimitPerMin int     `toml:"rate_limit_per_min"`
	MaxBatch        int     `toml:"max_batch"`
}

type StrategyConfig struct {
	File string `toml:"file"`
}
