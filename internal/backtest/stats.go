package backtest

import (
	"time"

	"kelpie/internal/portfolio"
)

// ComputeStats 从账本的已平仓历史与权益曲线汇总指标。
// 最大回撤按曲线顺序的峰谷差计算。
func ComputeStats(ledger *portfolio.Ledger, orders int) RunStats {
	stats := RunStats{
		FinalEquity: ledger.Equity(),
		Orders:      orders,
		FinishedAt:  time.Now(),
	}
	stats.Profit = stats.FinalEquity - ledger.StartCash()
	if ledger.StartCash() > 0 {
		stats.ReturnPct = stats.Profit / ledger.StartCash() * 100
	}

	closed := ledger.Closed()
	stats.Trades = len(closed)
	for _, p := range closed {
		switch {
		case p.Realized > 0:
			stats.Wins++
		case p.Realized < 0:
			stats.Losses++
		}
	}
	// 打平的交易不进胜负桶，胜率只在有输赢的交易里算
	if decided := stats.Wins + stats.Losses; decided > 0 {
		stats.WinRate = float64(stats.Wins) / float64(decided) * 100
	}

	curve := ledger.Curve()
	stats.Snapshots = len(curve)
	peak, valley := ledger.StartCash(), ledger.StartCash()
	maxDD := 0.0
	for _, snap := range curve {
		if snap.Equity > peak {
			peak = snap.Equity
		}
		if snap.Equity < valley {
			valley = snap.Equity
		}
		if peak > 0 {
			dd := (peak - snap.Equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	stats.EquityPeak = peak
	stats.EquityValley = valley
	stats.MaxDrawdownPct = maxDD
	return stats
}
