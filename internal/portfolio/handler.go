package portfolio

import (
	"fmt"

	"kelpie/internal/event"
	"kelpie/internal/exchange"
	"kelpie/internal/logger"
	"kelpie/internal/market"
)

// Handler 把 Ledger 接到事件流上：Execution 落账、Recall 解锁、
// Time 逐 K 估值并记录资金曲线。
type Handler struct {
	eng    *event.Engine
	feed   market.Feed
	ledger *Ledger
}

func NewHandler(eng *event.Engine, feed market.Feed, ledger *Ledger) *Handler {
	return &Handler{eng: eng, feed: feed, ledger: ledger}
}

func (h *Handler) Ledger() *Ledger { return h.ledger }

// Attach 订阅事件。估值与快照在 Time 事件上执行，
// 快照 handler 注册在 "." 下，排在所有具体 handler 之后。
func (h *Handler) Attach() {
	h.eng.Register(event.TypeExecution, "", event.Handler{Name: "portfolio.fill", Priority: 300, Fn: h.onExecution})
	h.eng.Register(event.TypeRecall, "", event.Handler{Name: "portfolio.recall", Priority: 300, Fn: h.onRecall})
	h.eng.Register(event.TypeTime, "", event.Handler{Name: "portfolio.mark", Priority: 300, Fn: h.onTime})
	h.eng.Register(event.TypeTime, ".", event.Handler{Name: "portfolio.snapshot", Priority: 100, Fn: h.onSnapshot})
}

func (h *Handler) onExecution(ev *event.Event, _ *event.Scratch) error {
	exec, ok := ev.Payload.(exchange.Execution)
	if !ok {
		return fmt.Errorf("execution 事件载荷类型错误: %T", ev.Payload)
	}
	qty := exec.LastQty * exec.Side.Sign()
	switch exec.Action {
	case exchange.ActionOpen:
		if err := h.ledger.Open(exec.Symbol, exec.LastPx, qty, exec.Commission, exec.Time); err != nil {
			logger.Warnf("[portfolio] 开仓落账失败 %s: %v", exec.OrderID, err)
		}
	case exchange.ActionClose:
		h.ledger.Unlock(exec.Symbol, exec.LastQty)
		if err := h.ledger.Close(exec.Symbol, exec.LastPx, qty, exec.Commission, exec.Time); err != nil {
			logger.Warnf("[portfolio] 平仓落账失败 %s: %v", exec.OrderID, err)
		}
	default:
		return fmt.Errorf("未知 action: %v", exec.Action)
	}
	return nil
}

func (h *Handler) onRecall(ev *event.Event, _ *event.Scratch) error {
	n, ok := ev.Payload.(exchange.RecallNotice)
	if !ok {
		return fmt.Errorf("recall 事件载荷类型错误: %T", ev.Payload)
	}
	if n.Action == exchange.ActionClose {
		h.ledger.Unlock(n.Symbol, n.Qty)
	}
	return nil
}

// onTime 刷新所有持仓的估值价。
func (h *Handler) onTime(_ *event.Event, _ *event.Scratch) error {
	for _, p := range h.ledger.Positions() {
		bar, err := h.feed.Current(p.Symbol)
		if err != nil {
			continue
		}
		h.ledger.MarkToMarket(p.Symbol, bar.Close)
	}
	return nil
}

func (h *Handler) onSnapshot(ev *event.Event, _ *event.Scratch) error {
	h.ledger.Snapshot(ev.Timestamp)
	return nil
}
