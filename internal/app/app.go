package app

import (
	"context"
	"fmt"

	"kelpie/internal/backtest"
	kcfg "kelpie/internal/config"
	"kelpie/internal/logger"
	"kelpie/internal/store/candle"
	"kelpie/internal/store/result"
	"kelpie/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg      *kcfg.Config
	candles  *candle.Store
	results  *result.Store
	registry *strategy.Registry
	sim      *backtest.Simulator
	httpSrv  *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *kcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.sim.SetContext(ctx)
	logger.Infof("[app] kelpie 启动，监听 %s", a.cfg.App.HTTPAddr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		return a.candles.Close()
	})
	return group.Wait()
}

// Simulator 暴露底层模拟器（测试与脚本用）。
func (a *App) Simulator() *backtest.Simulator {
	if a == nil {
		return nil
	}
	return a.sim
}
