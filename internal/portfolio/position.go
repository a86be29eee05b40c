package portfolio

import (
	"math"
	"time"

	"kelpie/internal/exchange"
)

// Position 用带符号数量作唯一存储（正为多、负为空），
// Side 只是派生视图。杠杆与保证金随仓位一起记账。
type Position struct {
	Symbol      string    `json:"symbol"`
	Qty         float64   `json:"qty"` // 带符号
	AvgPrice    float64   `json:"avg_price"`
	Price       float64   `json:"price"` // 最近一次逐 K 估值价
	Locked      float64   `json:"locked"`
	Commission  float64   `json:"commission"`
	Lever       float64   `json:"lever"`
	DepositRate float64   `json:"deposit_rate"`
	Deposit     float64   `json:"deposit"`
	OpenTime    time.Time `json:"open_time"`

	// 平仓后写入，只出现在历史记录里。
	CloseTime  time.Time `json:"close_time,omitempty"`
	ClosePrice float64   `json:"close_price,omitempty"`
	Realized   float64   `json:"realized,omitempty"`
}

func newPosition(symbol string, qty, price, commission, lever, depositRate float64, t time.Time) *Position {
	p := &Position{
		Symbol:      symbol,
		Qty:         qty,
		AvgPrice:    price,
		Price:       price,
		Commission:  commission,
		Lever:       lever,
		DepositRate: depositRate,
		OpenTime:    t,
	}
	p.Deposit = p.requiredDeposit(price, qty)
	return p
}

func (p *Position) requiredDeposit(price, qty float64) float64 {
	if p.DepositRate <= 0 {
		return 0
	}
	return math.Abs(price * qty * p.Lever * p.DepositRate)
}

// Side 由数量符号派生。
func (p *Position) Side() exchange.Side {
	if p.Qty < 0 {
		return exchange.SideShort
	}
	return exchange.SideLong
}

// Available 是可平数量（绝对值）：总量减去挂单冻结。
func (p *Position) Available() float64 {
	return math.Abs(p.Qty) - math.Abs(p.Locked)
}

// Profit 按当前估值价计算浮动盈亏（符号随方向）。
func (p *Position) Profit() float64 {
	return (p.Price - p.AvgPrice) * p.Qty * p.Lever
}

// Value 是该仓位对权益的贡献：保证金模式为 deposit+profit，
// 否则为市值。
func (p *Position) Value() float64 {
	if p.DepositRate > 0 {
		return p.Deposit + p.Profit()
	}
	return p.Price * p.Qty
}

// merge 合并同向加仓，重算加权均价。
func (p *Position) merge(qty, price, commission float64) {
	total := p.Qty + qty
	p.AvgPrice = (p.Qty*p.AvgPrice + qty*price) / total
	p.Qty = total
	p.Commission += commission
	p.Deposit += p.requiredDeposit(price, qty)
	p.Price = price
}

// split 按数量比例切出一个子仓位，手续费与保证金同比例划转，
// 剩余部分留在原仓位上。qty 带符号且与原方向一致。
func (p *Position) split(qty float64) *Position {
	ratio := qty / p.Qty
	sub := &Position{
		Symbol:      p.Symbol,
		Qty:         qty,
		AvgPrice:    p.AvgPrice,
		Price:       p.Price,
		Commission:  p.Commission * ratio,
		Lever:       p.Lever,
		DepositRate: p.DepositRate,
		Deposit:     p.Deposit * ratio,
		OpenTime:    p.OpenTime,
	}
	p.Qty -= qty
	p.Commission -= sub.Commission
	p.Deposit -= sub.Deposit
	return sub
}
