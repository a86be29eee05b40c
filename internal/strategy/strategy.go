package strategy

import (
	"time"

	"kelpie/internal/exchange"
	"kelpie/internal/market"
	"kelpie/internal/portfolio"
)

// OrderRequest 是策略下单的入参。Qty 恒为正，方向由 Side 表达。
type OrderRequest struct {
	Symbol string
	Action exchange.Action
	Side   exchange.Side
	Type   exchange.OrderType
	Qty    float64
	Price  float64 // limit/stop 触发价
}

// Context 是策略可见的会话能力：行情只读、账户查询、两段式下单
// （SubmitOrder 同步返回订单号，成交以 Execution 事件异步到达）。
type Context interface {
	Time() time.Time
	Current(symbol string) (market.Candle, error)
	History(symbol string, n int) market.Candles
	Cash() float64
	Equity() float64
	Available(symbol string) float64
	Position(symbol string) (*portfolio.Position, bool)
	SubmitOrder(req OrderRequest) (string, error)
	Cancel(match exchange.CancelMatch)
}

// Strategy 由回测会话在每根 K 线收盘后调用。
type Strategy interface {
	Name() string
	Initialize(ctx Context) error
	OnBar(ctx Context, bar market.Candle) error
}
