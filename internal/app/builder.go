package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"kelpie/internal/backtest"
	kcfg "kelpie/internal/config"
	"kelpie/internal/gateway/binance"
	"kelpie/internal/market"
	"kelpie/internal/store/candle"
	"kelpie/internal/store/result"
	"kelpie/internal/strategy"
)

// AppBuilder 把各组件的构造函数聚合起来，测试时可逐个替换。
type AppBuilder struct {
	cfg *kcfg.Config

	sourceFn   func(kcfg.MarketConfig) (market.Source, error)
	registryFn func(string) (*strategy.Registry, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *kcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		sourceFn:   buildSource,
		registryFn: strategy.NewRegistry,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithSource 替换行情数据源（测试注入假源）。
func WithSource(fn func(kcfg.MarketConfig) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sourceFn = fn }
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	candleStore, err := candle.NewStore(filepath.Join(cfg.Data.Root, "candles"))
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线库失败: %w", err)
	}
	resultStore, err := result.Open(cfg.Data.ResultsDB)
	if err != nil {
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}
	registry, err := b.registryFn(cfg.Strategy.File)
	if err != nil {
		return nil, fmt.Errorf("初始化策略注册表失败: %w", err)
	}
	source, err := b.sourceFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("初始化数据源失败: %w", err)
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store:           candleStore,
		Sources:         map[string]market.Source{source.Name(): source},
		DefaultExchange: cfg.Market.Name,
		RateLimitPerMin: cfg.Backtest.RateLimitPerMin,
		MaxBatch:        cfg.Backtest.MaxBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化数据服务失败: %w", err)
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		CandleStore:     candleStore,
		ResultStore:     resultStore,
		Fetcher:         svc,
		Registry:        registry,
		DefaultExchange: cfg.Market.Name,
		DefaultCash:     cfg.Backtest.InitialCash,
		MaxConcurrent:   cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化模拟器失败: %w", err)
	}
	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:        cfg.App.HTTPAddr,
		Svc:         svc,
		Simulator:   sim,
		CandleStore: candleStore,
		Results:     resultStore,
		Registry:    registry,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:      cfg,
		candles:  candleStore,
		results:  resultStore,
		registry: registry,
		sim:      sim,
		httpSrv:  httpSrv,
	}, nil
}

func buildSource(cfg kcfg.MarketConfig) (market.Source, error) {
	return binance.New(binance.Config{
		RESTBaseURL:  cfg.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		ProxyEnabled: cfg.ProxyEnabled,
		ProxyURL:     cfg.ProxyURL,
	})
}
