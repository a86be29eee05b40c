package backtest

import (
	"context"
	"fmt"
	"strings"

	"kelpie/internal/logger"
	"kelpie/internal/market"
	"kelpie/internal/store/candle"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ServiceConfig 配置历史数据拉取服务。
type ServiceConfig struct {
	Store           *candle.Store
	Sources         map[string]market.Source
	DefaultExchange string
	RateLimitPerMin int
	MaxBatch        int
}

// Service 负责把远端 K 线补齐进本地库，回测只读本地。
type Service struct {
	store           *candle.Store
	sources         map[string]market.Source
	defaultExchange string
	maxBatch        int
	limiter         *rate.Limiter
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("至少需要一个数据源")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 8
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	svc := &Service{
		store:           cfg.Store,
		sources:         make(map[string]market.Source),
		defaultExchange: strings.ToLower(cfg.DefaultExchange),
		maxBatch:        maxBatch,
		limiter:         rate.NewLimiter(ratePerSec, maxBatch),
	}
	for k, v := range cfg.Sources {
		svc.sources[strings.ToLower(k)] = v
	}
	if svc.defaultExchange == "" {
		for k := range svc.sources {
			svc.defaultExchange = k
			break
		}
	}
	return svc, nil
}

// FetchParams 描述一次补数请求。Exchange 为空时用默认源。
type FetchParams struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// Fetch 按页拉取并落库，返回写入条数。区间先对齐到周期网格。
func (s *Service) Fetch(ctx context.Context, params FetchParams) (int, error) {
	if params.Symbol == "" {
		return 0, fmt.Errorf("symbol 不能为空")
	}
	tf, err := ParseTimeframe(params.Timeframe)
	if err != nil {
		return 0, err
	}
	name := strings.ToLower(params.Exchange)
	if name == "" {
		name = s.defaultExchange
	}
	src := s.sources[name]
	if src == nil {
		return 0, fmt.Errorf("未知数据源: %s", params.Exchange)
	}
	start, end := tf.AlignRange(params.Start, params.End)
	if start >= end {
		return 0, fmt.Errorf("start 与 end 需要构成区间")
	}
	symbol := strings.ToUpper(params.Symbol)

	total := 0
	step := tf.Step()
	for cursor := start; cursor <= end; {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}
		batch, err := src.Fetch(ctx, market.FetchRequest{
			Symbol:   symbol,
			Interval: tf.SourceInterval,
			Start:    cursor,
			End:      end,
			Limit:    s.maxBatch,
		})
		if err != nil {
			return total, fmt.Errorf("拉取 %s %s 失败: %w", symbol, tf.Key, err)
		}
		if len(batch) == 0 {
			break
		}
		n, err := s.store.Insert(ctx, symbol, tf.Key, batch)
		if err != nil {
			return total, err
		}
		total += n
		next := batch[len(batch)-1].OpenTime + step
		if next <= cursor {
			break
		}
		cursor = next
	}
	logger.Infof("[backtest] 补数完成 %s@%s: %d 条", symbol, tf.Key, total)
	return total, nil
}

// EnsureRange 检查本地覆盖情况，缺多少补多少。
func (s *Service) EnsureRange(ctx context.Context, exchange, symbol, timeframe string, start, end int64) error {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return err
	}
	start, end = tf.AlignRange(start, end)
	symbol = strings.ToUpper(symbol)
	have, err := s.store.Range(ctx, symbol, tf.Key, start, end)
	if err != nil {
		return err
	}
	expected := tf.ExpectedCandles(start, end)
	if int64(len(have)) >= expected {
		return nil
	}
	logger.Infof("[backtest] %s@%s 本地 %d/%d 条，开始补数", symbol, tf.Key, len(have), expected)
	_, err = s.Fetch(ctx, FetchParams{Exchange: exchange, Symbol: symbol, Timeframe: tf.Key, Start: start, End: end})
	return err
}

// EnsureMany 并发补齐多个周期，常用于策略 warmup。
func (s *Service) EnsureMany(ctx context.Context, exchange, symbol string, timeframes []string, start, end int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, tfKey := range timeframes {
		tfKey := tfKey
		g.Go(func() error {
			return s.EnsureRange(gctx, exchange, symbol, tfKey, start, end)
		})
	}
	return g.Wait()
}
