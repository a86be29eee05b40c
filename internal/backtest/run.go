package backtest

import (
	"encoding/json"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	StartTS        int64          `json:"start_ts"`
	EndTS          int64          `json:"end_ts"`
	StrategyID     string         `json:"strategy_id"`
	Params         map[string]any `json:"params,omitempty"`
	InitialCash    float64        `json:"initial_cash"`
	Lever          float64        `json:"lever"`
	DepositRate    float64        `json:"deposit_rate"`
	SlippageBps    float64        `json:"slippage_bps"`
	CommissionRate float64        `json:"commission_rate"`
	CommissionMin  float64        `json:"commission_min"`
	DealMode       string         `json:"deal_mode"` // next_bar_open / this_bar_close
}

// RunStats 汇总收益与风控指标。
type RunStats struct {
	FinalEquity    float64   `json:"final_equity"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	WinRate        float64   `json:"win_rate"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Orders         int       `json:"orders"`
	Trades         int       `json:"trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	Snapshots      int       `json:"snapshots"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run 表示一次回测任务。
type Run struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Status      string    `json:"status"`
	StrategyID  string    `json:"strategy_id"`
	InitialCash float64   `json:"initial_cash"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r Run) MarshalStats() ([]byte, error)  { return json.Marshal(r.Stats) }
func (r Run) MarshalConfig() ([]byte, error) { return json.Marshal(r.Config) }

// RunRequest 为 HTTP 提交使用，零值字段取服务端默认。
type RunRequest struct {
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	StartTS        int64          `json:"start_ts"`
	EndTS          int64          `json:"end_ts"`
	StrategyID     string         `json:"strategy_id"`
	Params         map[string]any `json:"params,omitempty"`
	InitialCash    float64        `json:"initial_cash"`
	Lever          float64        `json:"lever"`
	DepositRate    float64        `json:"deposit_rate"`
	SlippageBps    float64        `json:"slippage_bps"`
	CommissionRate float64        `json:"commission_rate"`
	DealMode       string         `json:"deal_mode"`
}
