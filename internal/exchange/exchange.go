package exchange

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kelpie/internal/event"
	"kelpie/internal/logger"
	"kelpie/internal/market"
)

// DealMode 决定市价单的成交时机。
type DealMode uint8

const (
	// NextBarOpen 在下一根 K 线的开盘价成交（默认）。
	NextBarOpen DealMode = iota + 1
	// ThisBarClose 在当前 K 线的收盘价立即成交。
	ThisBarClose
)

func ParseDealMode(s string) (DealMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "next_bar_open":
		return NextBarOpen, nil
	case "this_bar_close":
		return ThisBarClose, nil
	}
	return 0, fmt.Errorf("未知 deal mode: %s", s)
}

// RecallNotice 随撤单发出，组合据此解锁冻结数量。
type RecallNotice struct {
	OrderID string
	Symbol  string
	Action  Action
	Side    Side
	Qty     float64
	Time    time.Time
}

type Config struct {
	Mode       DealMode
	Slippage   SlippageFunc
	Commission CommissionFunc
}

// Exchange 是模拟撮合引擎：持有挂单，在每根 K 线上评估成交条件，
// 产生 Execution 与 OrderStatus 事件。状态只在调度 goroutine 上变更。
type Exchange struct {
	eng  *event.Engine
	feed market.Feed
	mode DealMode
	slip SlippageFunc
	comm CommissionFunc

	resting map[string]*Order
	seq     []string // 挂单插入顺序，保证同一根 K 线上的评估顺序可复现
}

func New(eng *event.Engine, feed market.Feed, cfg Config) *Exchange {
	if cfg.Mode == 0 {
		cfg.Mode = NextBarOpen
	}
	if cfg.Slippage == nil {
		cfg.Slippage = NoSlippage()
	}
	if cfg.Commission == nil {
		cfg.Commission = DefaultCommission()
	}
	return &Exchange{
		eng:     eng,
		feed:    feed,
		mode:    cfg.Mode,
		slip:    cfg.Slippage,
		comm:    cfg.Commission,
		resting: make(map[string]*Order),
	}
}

// Attach 订阅订单、撤单与行情事件。撮合优先级高于策略，
// 保证挂单先于当根 K 线的新决策被处理。
func (x *Exchange) Attach() {
	x.eng.Register(event.TypeOrder, "", event.Handler{Name: "exchange.order", Priority: 300, Fn: x.onOrder})
	x.eng.Register(event.TypeCancel, "", event.Handler{Name: "exchange.cancel", Priority: 300, Fn: x.onCancel})
	x.eng.Register(event.TypeBar, "", event.Handler{Name: "exchange.match", Priority: 300, Fn: x.onBar})
}

// RestingCount 返回当前挂单数，仅供测试与查询。
func (x *Exchange) RestingCount() int { return len(x.resting) }

func (x *Exchange) onOrder(ev *event.Event, _ *event.Scratch) error {
	o, ok := ev.Payload.(*Order)
	if !ok {
		return fmt.Errorf("order 事件载荷类型错误: %T", ev.Payload)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("订单 %s 数量非法: %v", o.ID, o.Quantity)
	}
	o.Status = StatusGenerated
	x.emitStatus(o, ev.Timestamp)

	if o.Type == OrderMarket && x.mode == ThisBarClose {
		bar, err := x.feed.Current(o.Symbol)
		if err == nil && bar.Valid() {
			x.fill(o, bar.Close, bar.CloseAt())
			return nil
		}
		// 无可用行情时退化为挂单，下一根 K 线再试
	}
	x.resting[o.ID] = o
	x.seq = append(x.seq, o.ID)
	return nil
}

func (x *Exchange) onCancel(ev *event.Event, _ *event.Scratch) error {
	m, ok := ev.Payload.(CancelMatch)
	if !ok {
		return fmt.Errorf("cancel 事件载荷类型错误: %T", ev.Payload)
	}
	matched := 0
	for _, id := range append([]string(nil), x.seq...) {
		o, ok := x.resting[id]
		if !ok || !m.matches(o) {
			continue
		}
		if err := o.advance(StatusCancelled); err != nil {
			logger.Warnf("[exchange] 撤单 %s 失败: %v", o.ID, err)
			continue
		}
		matched++
		x.remove(o.ID)
		x.emitStatus(o, ev.Timestamp)
		x.eng.Put(event.New(event.TypeRecall, o.Symbol, ev.Timestamp, RecallNotice{
			OrderID: o.ID,
			Symbol:  o.Symbol,
			Action:  o.Action,
			Side:    o.Side,
			Qty:     o.Leaves(),
			Time:    ev.Timestamp,
		}))
	}
	if matched == 0 {
		logger.Infof("[exchange] 撤单未命中任何挂单: %+v", m)
	}
	return nil
}

// onBar 按插入顺序重估全部挂单。
func (x *Exchange) onBar(ev *event.Event, _ *event.Scratch) error {
	for _, id := range append([]string(nil), x.seq...) {
		o, ok := x.resting[id]
		if !ok {
			continue
		}
		bar, err := x.feed.Current(o.Symbol)
		if err != nil {
			continue
		}
		x.tryMatch(o, bar)
	}
	return nil
}

// tryMatch 对单个挂单评估一根 K 线。未成交的订单从 Generated
// 进入 NotTraded 并继续等待。
func (x *Exchange) tryMatch(o *Order, bar market.Candle) {
	price, ok := matchPrice(o, bar)
	if !ok || math.IsNaN(price) {
		if math.IsNaN(price) {
			logger.Warnf("[exchange] 订单 %s 成交价为 NaN，跳过本轮", o.ID)
		}
		if o.Status == StatusGenerated {
			if err := o.advance(StatusNotTraded); err == nil {
				x.emitStatus(o, bar.CloseAt())
			}
		}
		return
	}
	when := bar.CloseAt()
	if o.Type == OrderMarket {
		when = bar.OpenAt()
	}
	x.fill(o, price, when)
}

// matchPrice 返回订单在该 K 线上的名义成交价。
// 买向限价：low < limit 触发，开盘已低于限价时按更优的开盘价成交；
// 卖向限价对称。停损单是限价的镜像。
func matchPrice(o *Order, bar market.Candle) (float64, bool) {
	switch o.Type {
	case OrderMarket:
		return bar.Open, true
	case OrderLimit:
		if o.isBuy() {
			if bar.Low < o.Price {
				if bar.Open >= o.Price {
					return o.Price, true
				}
				return bar.Open, true
			}
		} else {
			if bar.High > o.Price {
				if bar.Open <= o.Price {
					return o.Price, true
				}
				return bar.Open, true
			}
		}
	case OrderStop:
		if o.isBuy() {
			if bar.High > o.Price {
				if bar.Open <= o.Price {
					return o.Price, true
				}
				return bar.Open, true
			}
		} else {
			if bar.Low < o.Price {
				if bar.Open >= o.Price {
					return o.Price, true
				}
				return bar.Open, true
			}
		}
	}
	return 0, false
}

func (x *Exchange) fill(o *Order, price float64, when time.Time) {
	px := x.slip(o, price)
	if math.IsNaN(px) {
		logger.Warnf("[exchange] 订单 %s 滑点后价格为 NaN，跳过本轮", o.ID)
		return
	}
	qty := o.Leaves()
	fee := x.comm(o, px, qty)
	o.Filled += qty
	if err := o.advance(StatusAllTraded); err != nil {
		logger.Errorf("[exchange] 订单 %s 成交状态迁移失败: %v", o.ID, err)
		return
	}
	x.remove(o.ID)
	x.emitStatus(o, when)
	x.eng.Put(event.New(event.TypeExecution, o.Symbol, when, Execution{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Action:     o.Action,
		Side:       o.Side,
		LastQty:    qty,
		LastPx:     px,
		CumQty:     o.Filled,
		LeavesQty:  o.Leaves(),
		Commission: fee,
		Time:       when,
	}))
}

func (x *Exchange) emitStatus(o *Order, when time.Time) {
	x.eng.Put(event.New(event.TypeOrderStatus, o.Symbol, when, StatusUpdate{
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Status:  o.Status,
		Time:    when,
	}))
}

func (x *Exchange) remove(id string) {
	delete(x.resting, id)
	for i, v := range x.seq {
		if v == id {
			x.seq = append(x.seq[:i], x.seq[i+1:]...)
			break
		}
	}
}
