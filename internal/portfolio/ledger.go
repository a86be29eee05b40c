package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"kelpie/internal/exchange"
	"kelpie/internal/logger"
)

var (
	// ErrInsufficientCash：开仓会导致现金为负，订单被拒绝（可恢复）。
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrOppositeDirection：已持有反向仓位时开仓。必须先平后反。
	ErrOppositeDirection = errors.New("opposite position exists, close before reversing")
	// ErrExceedsPosition：平仓数量超过持仓。
	ErrExceedsPosition = errors.New("close quantity exceeds position")
	// ErrDirectionMismatch：平仓方向与持仓方向不符。
	ErrDirectionMismatch = errors.New("close direction mismatches position")
	// ErrNoPosition：无此符号的持仓。
	ErrNoPosition = errors.New("position not found")
)

// Transaction 是一条不可变的成交流水。
type Transaction struct {
	Time       time.Time       `json:"time"`
	Symbol     string          `json:"symbol"`
	Action     exchange.Action `json:"action"`
	Side       exchange.Side   `json:"side"`
	Qty        float64         `json:"qty"`
	Price      float64         `json:"price"`
	Commission float64         `json:"commission"`
	Realized   float64         `json:"realized"`
	CashAfter  float64         `json:"cash_after"`
}

// EquitySnapshot 是每个时间刻度的资金快照，序列即资金曲线。
type EquitySnapshot struct {
	Time   time.Time `json:"time"`
	Cash   float64   `json:"cash"`
	Equity float64   `json:"equity"`
}

// Ledger 把成交落账为现金与持仓。一次回测一个实例，
// 所有变更都发生在调度 goroutine 上，不加锁。
type Ledger struct {
	cash        float64
	startCash   float64
	lever       float64
	depositRate float64

	positions map[string]*Position
	symbols   []string // 插入顺序，保证权益汇总可复现
	closed    []*Position
	txns      []Transaction
	curve     []EquitySnapshot
}

func NewLedger(startCash, lever, depositRate float64) *Ledger {
	if lever <= 0 {
		lever = 1
	}
	return &Ledger{
		cash:        startCash,
		startCash:   startCash,
		lever:       lever,
		depositRate: depositRate,
		positions:   make(map[string]*Position),
	}
}

func (l *Ledger) Cash() float64      { return l.cash }
func (l *Ledger) StartCash() float64 { return l.startCash }

// Equity 是现金加上所有持仓的贡献（保证金模式为 deposit+profit）。
func (l *Ledger) Equity() float64 {
	eq := l.cash
	for _, sym := range l.symbols {
		if p, ok := l.positions[sym]; ok {
			eq += p.Value()
		}
	}
	return eq
}

func (l *Ledger) Position(symbol string) (*Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

func (l *Ledger) Positions() []*Position {
	out := make([]*Position, 0, len(l.symbols))
	for _, sym := range l.symbols {
		if p, ok := l.positions[sym]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Available 返回某符号可平数量，无持仓时为 0。
func (l *Ledger) Available(symbol string) float64 {
	if p, ok := l.positions[symbol]; ok {
		return p.Available()
	}
	return 0
}

func (l *Ledger) Closed() []*Position         { return l.closed }
func (l *Ledger) Transactions() []Transaction { return l.txns }
func (l *Ledger) Curve() []EquitySnapshot     { return l.curve }

// Open 处理开仓成交：新建或同向合并。反向持仓是显式错误，
// 现金不足时拒绝（不落账，仅记日志）。qty 带符号。
func (l *Ledger) Open(symbol string, price, qty, commission float64, t time.Time) error {
	if qty == 0 || price <= 0 || math.IsNaN(price) {
		return fmt.Errorf("开仓参数非法: price=%v qty=%v", price, qty)
	}
	existing, ok := l.positions[symbol]
	if ok && existing.Qty*qty < 0 {
		return fmt.Errorf("%s: %w", symbol, ErrOppositeDirection)
	}
	cost := math.Abs(price * qty)
	if l.depositRate > 0 {
		cost = math.Abs(price * qty * l.lever * l.depositRate)
	}
	if l.cash-cost-commission < 0 {
		logger.Warnf("[portfolio] %s 开仓被拒：需要 %.4f，现金只有 %.4f", symbol, cost+commission, l.cash)
		return ErrInsufficientCash
	}
	l.cash -= cost + commission
	if ok {
		existing.merge(qty, price, commission)
	} else {
		l.positions[symbol] = newPosition(symbol, qty, price, commission, l.lever, l.depositRate, t)
		l.symbols = append(l.symbols, symbol)
	}
	l.appendTxn(t, symbol, exchange.ActionOpen, sideOf(qty), qty, price, commission, 0)
	return nil
}

// Close 处理平仓成交。qty 带符号且必须与持仓同号；
// 部分平仓先按比例 split 出子仓位再平掉，剩余留在账上。
func (l *Ledger) Close(symbol string, price, qty, commission float64, t time.Time) error {
	p, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%s: %w", symbol, ErrNoPosition)
	}
	if qty == 0 || p.Qty*qty < 0 {
		return fmt.Errorf("%s: %w", symbol, ErrDirectionMismatch)
	}
	if math.Abs(qty) > math.Abs(p.Qty)+1e-9 {
		return fmt.Errorf("%s: %w (平 %v 持 %v)", symbol, ErrExceedsPosition, qty, p.Qty)
	}

	var lot *Position
	full := math.Abs(math.Abs(qty)-math.Abs(p.Qty)) <= 1e-9
	if full {
		lot = p
		delete(l.positions, symbol)
		l.removeSymbol(symbol)
	} else {
		lot = p.split(qty)
	}

	realized := (price - lot.AvgPrice) * lot.Qty * lot.Lever
	refund := math.Abs(lot.AvgPrice * lot.Qty)
	if l.depositRate > 0 {
		refund = lot.Deposit
	}
	l.cash += refund + realized - commission

	lot.Price = price
	lot.ClosePrice = price
	lot.CloseTime = t
	lot.Realized = realized
	lot.Commission += commission
	l.closed = append(l.closed, lot)
	l.appendTxn(t, symbol, exchange.ActionClose, sideOf(qty), qty, price, commission, realized)
	return nil
}

// Lock 冻结待平数量，防止重复下平仓单。
func (l *Ledger) Lock(symbol string, qty float64) error {
	p, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%s: %w", symbol, ErrNoPosition)
	}
	next := math.Abs(p.Locked) + math.Abs(qty)
	if next > math.Abs(p.Qty)+1e-9 {
		return fmt.Errorf("%s: %w (冻结 %v 持 %v)", symbol, ErrExceedsPosition, next, p.Qty)
	}
	p.Locked = next
	return nil
}

// Unlock 在成交或撤单（Recall）后释放冻结。
func (l *Ledger) Unlock(symbol string, qty float64) {
	p, ok := l.positions[symbol]
	if !ok {
		return
	}
	p.Locked = math.Abs(p.Locked) - math.Abs(qty)
	if p.Locked < 0 {
		p.Locked = 0
	}
}

// MarkToMarket 刷新估值价。NaN 视为陈旧数据，跳过不落账。
func (l *Ledger) MarkToMarket(symbol string, price float64) {
	p, ok := l.positions[symbol]
	if !ok {
		return
	}
	if math.IsNaN(price) || price <= 0 {
		logger.Debugf("[portfolio] %s 估值价无效，保留上一价", symbol)
		return
	}
	p.Price = price
}

// Snapshot 记录一个 (time, cash, equity) 点，序列即资金曲线。
func (l *Ledger) Snapshot(t time.Time) EquitySnapshot {
	snap := EquitySnapshot{Time: t, Cash: l.cash, Equity: l.Equity()}
	l.curve = append(l.curve, snap)
	return snap
}

func (l *Ledger) appendTxn(t time.Time, symbol string, action exchange.Action, side exchange.Side, qty, price, commission, realized float64) {
	l.txns = append(l.txns, Transaction{
		Time:       t,
		Symbol:     symbol,
		Action:     action,
		Side:       side,
		Qty:        qty,
		Price:      price,
		Commission: commission,
		Realized:   realized,
		CashAfter:  l.cash,
	})
}

func (l *Ledger) removeSymbol(symbol string) {
	for i, s := range l.symbols {
		if s == symbol {
			l.symbols = append(l.symbols[:i], l.symbols[i+1:]...)
			return
		}
	}
}

func sideOf(qty float64) exchange.Side {
	if qty < 0 {
		return exchange.SideShort
	}
	return exchange.SideLong
}
