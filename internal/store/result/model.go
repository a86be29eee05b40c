package result

import (
	"time"

	"gorm.io/datatypes"
)

// RunModel 持久化一次回测任务。Config/Stats 以 JSON 整体存取。
type RunModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	Symbol         string `gorm:"size:32;index"`
	Timeframe      string `gorm:"size:16"`
	StrategyID     string `gorm:"size:64"`
	Status         string `gorm:"size:16;index"`
	StartTS        int64
	EndTS          int64
	InitialCash    float64
	FinalEquity    float64
	Profit         float64
	ReturnPct      float64
	MaxDrawdownPct float64
	Message        string         `gorm:"size:512"`
	Config         datatypes.JSON `gorm:"type:json"`
	Stats          datatypes.JSON `gorm:"type:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (RunModel) TableName() string { return "runs" }

// OrderModel 记录一次下单行为（含最终状态）。
type OrderModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:64;index"`
	OrderID   string `gorm:"size:64;index"`
	Symbol    string `gorm:"size:32"`
	Action    string `gorm:"size:8"`
	Side      string `gorm:"size:8"`
	Type      string `gorm:"size:8"`
	Status    string `gorm:"size:24"`
	Qty       float64
	Price     float64
	Filled    float64
	CreatedTS int64
}

func (OrderModel) TableName() string { return "orders" }

// TradeModel 记录一笔已平仓位的盈亏。
type TradeModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"size:64;index"`
	Symbol     string `gorm:"size:32"`
	Side       string `gorm:"size:8"`
	Qty        float64
	EntryPrice float64
	ExitPrice  float64
	Realized   float64
	Commission float64
	OpenTS     int64
	CloseTS    int64
}

func (TradeModel) TableName() string { return "trades" }

// SnapshotModel 保存资金曲线的一个点。
type SnapshotModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	RunID  string `gorm:"size:64;index"`
	TS     int64  `gorm:"index"`
	Cash   float64
	Equity float64
}

func (SnapshotModel) TableName() string { return "snapshots" }
