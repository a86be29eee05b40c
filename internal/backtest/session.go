package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"kelpie/internal/event"
	"kelpie/internal/exchange"
	"kelpie/internal/logger"
	"kelpie/internal/market"
	"kelpie/internal/portfolio"
	"kelpie/internal/strategy"

	"github.com/google/uuid"
)

// Session 把一次回测的全部组件装到一起：行情游标、事件引擎、
// 撮合引擎、账本与策略。组件之间只通过事件队列通信，
// Session 自身持有唯一的所有权（无环引用）。
type Session struct {
	cfg    RunConfig
	eng    *event.Engine
	feed   *market.MemoryFeed
	exch   *exchange.Exchange
	ledger *portfolio.Ledger
	strat  strategy.Strategy

	now    time.Time
	orders []*exchange.Order
}

func NewSession(cfg RunConfig, candles []market.Candle, strat strategy.Strategy) (*Session, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("回测数据为空: %s", cfg.Symbol)
	}
	mode, err := exchange.ParseDealMode(cfg.DealMode)
	if err != nil {
		return nil, err
	}
	eng := event.NewEngine()
	feed := market.NewMemoryFeed(cfg.Symbol, candles)
	slip := exchange.NoSlippage()
	if cfg.SlippageBps > 0 {
		slip = exchange.BpsSlippage(cfg.SlippageBps)
	}
	comm := exchange.DefaultCommission()
	if cfg.CommissionRate > 0 {
		comm = exchange.PercentCommission(cfg.CommissionRate, cfg.CommissionMin)
	}
	exch := exchange.New(eng, feed, exchange.Config{Mode: mode, Slippage: slip, Commission: comm})
	ledger := portfolio.NewLedger(cfg.InitialCash, cfg.Lever, cfg.DepositRate)

	s := &Session{
		cfg:    cfg,
		eng:    eng,
		feed:   feed,
		exch:   exch,
		ledger: ledger,
		strat:  strat,
	}
	exch.Attach()
	portfolio.NewHandler(eng, feed, ledger).Attach()
	// 策略挂在 Time 事件上、优先级低于账本：同一刻度内先落账
	// Execution、再 MarkToMarket，策略读到的才是最新账户状态
	eng.Register(event.TypeTime, "", event.Handler{Name: "session.strategy", Priority: 200, Fn: s.onTime})
	return s, nil
}

func (s *Session) Ledger() *portfolio.Ledger { return s.ledger }
func (s *Session) Orders() []*exchange.Order { return s.orders }

// Run 驱动回测：逐根推进 K 线，每根先发 Bar 再发 Time，
// 等队列清空后才推进下一根，保证级联事件全部落账、结果可复现。
func (s *Session) Run(ctx context.Context) error {
	s.eng.Run()
	defer func() {
		s.eng.Stop()
		s.eng.Join()
	}()
	if err := s.strat.Initialize(s); err != nil {
		return fmt.Errorf("策略初始化失败: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		bar, ok := s.feed.Next()
		if !ok {
			break
		}
		s.now = bar.CloseAt()
		s.eng.Put(event.New(event.TypeBar, s.cfg.Symbol, s.now, bar))
		s.eng.Put(event.New(event.TypeTime, s.cfg.Symbol, s.now, nil))
		s.eng.WaitIdle()
	}
	s.closeRemaining()
	return nil
}

// closeRemaining 在数据耗尽时按最后收盘价平掉剩余仓位，
// 使已平仓历史覆盖整段回测。
func (s *Session) closeRemaining() {
	bar, err := s.feed.Current(s.cfg.Symbol)
	if err != nil || !bar.Valid() {
		return
	}
	for _, p := range s.ledger.Positions() {
		qty := p.Qty
		if err := s.ledger.Close(p.Symbol, bar.Close, qty, 0, bar.CloseAt()); err != nil {
			logger.Warnf("[backtest] 收尾平仓失败 %s: %v", p.Symbol, err)
		}
	}
	s.ledger.Snapshot(bar.CloseAt())
}

// ---- strategy.Context ----

func (s *Session) Time() time.Time { return s.now }

func (s *Session) Current(symbol string) (market.Candle, error) {
	return s.feed.Current(symbol)
}

func (s *Session) History(symbol string, n int) market.Candles {
	return s.feed.History(symbol, n)
}

func (s *Session) Cash() float64   { return s.ledger.Cash() }
func (s *Session) Equity() float64 { return s.ledger.Equity() }

func (s *Session) Available(symbol string) float64 {
	return s.ledger.Available(symbol)
}

func (s *Session) Position(symbol string) (*portfolio.Position, bool) {
	return s.ledger.Position(symbol)
}

// SubmitOrder 同步返回订单号，成交以 Execution 事件异步到达。
// 平仓单先冻结对应数量，防止重复下单。
func (s *Session) SubmitOrder(req strategy.OrderRequest) (string, error) {
	if req.Qty <= 0 || math.IsNaN(req.Qty) {
		return "", fmt.Errorf("下单数量非法: %v", req.Qty)
	}
	if req.Action == exchange.ActionClose {
		if err := s.ledger.Lock(req.Symbol, req.Qty); err != nil {
			return "", err
		}
	}
	o := &exchange.Order{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Action:    req.Action,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Qty,
		Price:     req.Price,
		CreatedAt: s.now,
	}
	s.orders = append(s.orders, o)
	s.eng.Put(event.New(event.TypeOrder, req.Symbol, s.now, o))
	return o.ID, nil
}

func (s *Session) Cancel(match exchange.CancelMatch) {
	s.eng.Put(event.New(event.TypeCancel, match.Symbol, s.now, match))
}

func (s *Session) onTime(_ *event.Event, _ *event.Scratch) error {
	bar, err := s.feed.Current(s.cfg.Symbol)
	if err != nil {
		return nil
	}
	return s.strat.OnBar(s, bar)
}
