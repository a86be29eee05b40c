package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kelpie/internal/logger"
	"kelpie/internal/store/candle"
	"kelpie/internal/store/result"
	"kelpie/internal/strategy"

	"github.com/google/uuid"
)

type SimulatorConfig struct {
	CandleStore     *candle.Store
	ResultStore     *result.Store
	Fetcher         *Service
	Registry        *strategy.Registry
	DefaultExchange string
	DefaultCash     float64
	MaxConcurrent   int
}

// Simulator 将历史 K 线与策略推演为资金曲线，任务在后台运行，
// 进度与结果写入 result store。
type Simulator struct {
	store       *candle.Store
	results     *result.Store
	fetcher     *Service
	registry    *strategy.Registry
	defaultEx   string
	defaultCash float64

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("strategy registry 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	defaultCash := cfg.DefaultCash
	if defaultCash <= 0 {
		defaultCash = 10000
	}
	return &Simulator{
		store:       cfg.CandleStore,
		results:     cfg.ResultStore,
		fetcher:     cfg.Fetcher,
		registry:    cfg.Registry,
		defaultEx:   strings.ToLower(cfg.DefaultExchange),
		defaultCash: defaultCash,
		sem:         make(chan struct{}, maxConcurrent),
		baseCtx:     context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// StartRun 创建回测任务并立即返回，模拟过程在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	if req.Symbol == "" {
		return Run{}, fmt.Errorf("symbol 不能为空")
	}
	if req.StrategyID == "" {
		return Run{}, fmt.Errorf("strategy_id 不能为空")
	}
	if _, ok := s.registry.Template(req.StrategyID); !ok {
		return Run{}, fmt.Errorf("未知策略: %s", req.StrategyID)
	}
	tfKey := req.Timeframe
	if tfKey == "" {
		tfKey = "1h"
	}
	tf, err := ParseTimeframe(tfKey)
	if err != nil {
		return Run{}, err
	}
	start, end := tf.AlignRange(req.StartTS, req.EndTS)
	if start <= 0 || end <= start {
		return Run{}, fmt.Errorf("start/end 非法")
	}
	initialCash := req.InitialCash
	if initialCash <= 0 {
		initialCash = s.defaultCash
	}
	lever := req.Lever
	if lever < 1 {
		lever = 1
	}
	dealMode := req.DealMode
	if dealMode == "" {
		dealMode = "next_bar_open"
	}

	cfg := RunConfig{
		Symbol:         strings.ToUpper(req.Symbol),
		Timeframe:      tf.Key,
		StartTS:        start,
		EndTS:          end,
		StrategyID:     req.StrategyID,
		Params:         req.Params,
		InitialCash:    initialCash,
		Lever:          lever,
		DepositRate:    req.DepositRate,
		SlippageBps:    req.SlippageBps,
		CommissionRate: req.CommissionRate,
		DealMode:       dealMode,
	}
	run := Run{
		ID:          uuid.NewString(),
		Symbol:      cfg.Symbol,
		Status:      RunStatusPending,
		StrategyID:  cfg.StrategyID,
		InitialCash: initialCash,
		Config:      cfg,
		CreatedAt:   time.Now(),
	}
	model, err := runToModel(run)
	if err != nil {
		return Run{}, err
	}
	if err := s.results.InsertRun(s.ctx(), model); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s 等待可用 worker", runID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "加载历史数据…")
	if err := s.execute(ctx, runID, cfg); err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", runID, err)
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}

func (s *Simulator) execute(ctx context.Context, runID string, cfg RunConfig) error {
	if s.fetcher != nil {
		if err := s.fetcher.EnsureRange(ctx, s.defaultEx, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS); err != nil {
			logger.Warnf("[backtest] run %s 补数失败，使用本地已有数据: %v", runID, err)
		}
	}
	candles, err := s.store.Range(ctx, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("%s@%s 区间内没有数据", cfg.Symbol, cfg.Timeframe)
	}

	strat, err := s.registry.Build(cfg.StrategyID, cfg.Params)
	if err != nil {
		return err
	}
	session, err := NewSession(cfg, candles, strat)
	if err != nil {
		return err
	}
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, fmt.Sprintf("回放 %d 根 K 线…", len(candles)))
	if err := session.Run(ctx); err != nil {
		return err
	}
	return s.persist(ctx, runID, cfg, session)
}

func (s *Simulator) persist(ctx context.Context, runID string, cfg RunConfig, session *Session) error {
	ledger := session.Ledger()
	for _, o := range session.Orders() {
		if err := s.results.InsertOrder(ctx, &result.OrderModel{
			RunID:     runID,
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Action:    o.Action.String(),
			Side:      o.Side.String(),
			Type:      o.Type.String(),
			Status:    o.Status.String(),
			Qty:       o.Quantity,
			Price:     o.Price,
			Filled:    o.Filled,
			CreatedTS: o.CreatedAt.UnixMilli(),
		}); err != nil {
			return err
		}
	}
	for _, p := range ledger.Closed() {
		if err := s.results.InsertTrade(ctx, &result.TradeModel{
			RunID:      runID,
			Symbol:     p.Symbol,
			Side:       p.Side().String(),
			Qty:        p.Qty,
			EntryPrice: p.AvgPrice,
			ExitPrice:  p.ClosePrice,
			Realized:   p.Realized,
			Commission: p.Commission,
			OpenTS:     p.OpenTime.UnixMilli(),
			CloseTS:    p.CloseTime.UnixMilli(),
		}); err != nil {
			return err
		}
	}
	curve := ledger.Curve()
	snaps := make([]result.SnapshotModel, 0, len(curve))
	for _, snap := range curve {
		snaps = append(snaps, result.SnapshotModel{
			RunID:  runID,
			TS:     snap.Time.UnixMilli(),
			Cash:   snap.Cash,
			Equity: snap.Equity,
		})
	}
	if err := s.results.InsertSnapshots(ctx, snaps); err != nil {
		return err
	}

	stats := ComputeStats(ledger, len(session.Orders()))
	run := Run{
		ID:          runID,
		Symbol:      cfg.Symbol,
		Status:      RunStatusDone,
		StrategyID:  cfg.StrategyID,
		InitialCash: cfg.InitialCash,
		Message:     "完成",
		Config:      cfg,
		Stats:       stats,
	}
	model, err := runToModel(run)
	if err != nil {
		return err
	}
	now := time.Now()
	model.CompletedAt = &now
	model.FinalEquity = stats.FinalEquity
	model.Profit = stats.Profit
	model.ReturnPct = stats.ReturnPct
	model.MaxDrawdownPct = stats.MaxDrawdownPct
	return s.results.FinishRun(ctx, model)
}

func runToModel(run Run) (*result.RunModel, error) {
	cfgJSON, err := run.MarshalConfig()
	if err != nil {
		return nil, err
	}
	statsJSON, err := run.MarshalStats()
	if err != nil {
		return nil, err
	}
	return &result.RunModel{
		ID:          run.ID,
		Symbol:      run.Symbol,
		Timeframe:   run.Config.Timeframe,
		StrategyID:  run.StrategyID,
		Status:      run.Status,
		StartTS:     run.Config.StartTS,
		EndTS:       run.Config.EndTS,
		InitialCash: run.InitialCash,
		Message:     run.Message,
		Config:      cfgJSON,
		Stats:       statsJSON,
	}, nil
}
