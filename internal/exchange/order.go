package exchange

import (
	"fmt"
	"time"
)

// Side 是持仓方向。显式枚举，禁止用 0/1 同时表达方向和开平。
type Side int8

const (
	SideLong  Side = 1
	SideShort Side = -1
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	}
	return "unknown"
}

// Sign 返回方向对应的数量符号。
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Action 区分开仓与平仓。
type Action uint8

const (
	ActionOpen Action = iota + 1
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	}
	return "unknown"
}

// OrderType 是订单种类。
type OrderType uint8

const (
	OrderMarket OrderType = iota + 1
	OrderLimit
	OrderStop
)

func (t OrderType) String() string {
	switch t {
	case OrderMarket:
		return "market"
	case OrderLimit:
		return "limit"
	case OrderStop:
		return "stop"
	}
	return "unknown"
}

// Status 是订单状态机：
//
//	Generated → NotTraded → PartiallyTraded → AllTraded
//	                      ↘ Cancelled（仅限 NotTraded/PartiallyTraded）
//
// 状态只能前进，不允许回退。
type Status uint8

const (
	StatusGenerated Status = iota + 1
	StatusNotTraded
	StatusPartiallyTraded
	StatusAllTraded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusGenerated:
		return "generated"
	case StatusNotTraded:
		return "not_traded"
	case StatusPartiallyTraded:
		return "partially_traded"
	case StatusAllTraded:
		return "all_traded"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Order 是交易所持有的挂单。Quantity 恒为正，方向由 Side 表达。
type Order struct {
	ID        string
	Symbol    string
	Action    Action
	Side      Side
	Type      OrderType
	Quantity  float64
	Price     float64 // limit/stop 触发价；市价单为 0
	CreatedAt time.Time
	Status    Status
	Filled    float64
}

// SignedQty 返回带方向符号的数量。
func (o *Order) SignedQty() float64 {
	return o.Quantity * o.Side.Sign()
}

// Leaves 返回剩余未成交数量。
func (o *Order) Leaves() float64 {
	return o.Quantity - o.Filled
}

// advance 推进状态机，非法迁移返回错误。
func (o *Order) advance(next Status) error {
	ok := false
	switch next {
	case StatusNotTraded:
		ok = o.Status == StatusGenerated
	case StatusPartiallyTraded:
		ok = o.Status == StatusGenerated || o.Status == StatusNotTraded || o.Status == StatusPartiallyTraded
	case StatusAllTraded:
		ok = o.Status != StatusCancelled && o.Status != StatusAllTraded
	case StatusCancelled:
		ok = o.Status == StatusNotTraded || o.Status == StatusPartiallyTraded || o.Status == StatusGenerated
	}
	if !ok {
		return fmt.Errorf("订单 %s 状态非法迁移: %s → %s", o.ID, o.Status, next)
	}
	o.Status = next
	return nil
}

// isBuy 报告该订单的成交是否表现为买入（开多或平空）。
func (o *Order) isBuy() bool {
	if o.Action == ActionOpen {
		return o.Side == SideLong
	}
	return o.Side == SideShort
}

// Execution 是一笔成交回报。CumQty+LeavesQty 恒等于原始数量。
type Execution struct {
	OrderID    string
	Symbol     string
	Action     Action
	Side       Side
	LastQty    float64
	LastPx     float64
	CumQty     float64
	LeavesQty  float64
	Commission float64
	Time       time.Time
}

// StatusUpdate 是 OrderStatus 事件的载荷。
type StatusUpdate struct {
	OrderID string
	Symbol  string
	Status  Status
	Time    time.Time
}

// CancelMatch 描述撤单条件，零值字段不参与匹配。
// 命中全部条件的挂单被整体撤销（不支持按数量部分撤销）。
type CancelMatch struct {
	OrderID string
	Symbol  string
	Side    Side
	Action  Action
	Type    OrderType
}

func (m CancelMatch) matches(o *Order) bool {
	if m.OrderID != "" && m.OrderID != o.ID {
		return false
	}
	if m.Symbol != "" && m.Symbol != o.Symbol {
		return false
	}
	if m.Side != 0 && m.Side != o.Side {
		return false
	}
	if m.Action != 0 && m.Action != o.Action {
		return false
	}
	if m.Type != 0 && m.Type != o.Type {
		return false
	}
	return true
}
