package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(h int) time.Time {
	return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC)
}

func TestOpenAndMergeWeightedAvg(t *testing.T) {
	l := NewLedger(100_000, 1, 0)

	assert.NoError(t, l.Open("BTCUSDT", 10, 1000, 5, ts(0)))
	assert.NoError(t, l.Open("BTCUSDT", 12, 500, 3, ts(1)))

	p, ok := l.Position("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 1500.0, p.Qty)
	// (1000*10 + 500*12) / 1500
	assert.InDelta(t, 10.6666667, p.AvgPrice, 1e-6)
	assert.Equal(t, 8.0, p.Commission)
	assert.InDelta(t, 100_000-10*1000-12*500-8, l.Cash(), 1e-9)
}

func TestPartialCloseSplitsProportionally(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 1000, 10, ts(0)))

	assert.NoError(t, l.Close("BTCUSDT", 12, 400, 2, ts(1)))

	p, ok := l.Position("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 600.0, p.Qty)
	assert.Equal(t, 10.0, p.AvgPrice)
	assert.InDelta(t, 6.0, p.Commission, 1e-9)

	closed := l.Closed()
	assert.Len(t, closed, 1)
	lot := closed[0]
	assert.Equal(t, 400.0, lot.Qty)
	assert.InDelta(t, (12.0-10.0)*400, lot.Realized, 1e-9)
	assert.Equal(t, 12.0, lot.ClosePrice)
	// 开仓手续费按比例划转 + 平仓手续费
	assert.InDelta(t, 4.0+2.0, lot.Commission, 1e-9)

	// 现金 = 10w - 成本 - 开仓费 + 退回 + 盈亏 - 平仓费
	want := 100_000.0 - 10*1000 - 10 + 10*400 + 800 - 2
	assert.InDelta(t, want, l.Cash(), 1e-9)
}

func TestFullCloseRemovesPosition(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 1000, 0, ts(0)))
	assert.NoError(t, l.Close("BTCUSDT", 9, 1000, 0, ts(1)))

	_, ok := l.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Empty(t, l.Positions())
	assert.InDelta(t, 99_000.0, l.Cash(), 1e-9)
	assert.Len(t, l.Closed(), 1)
	assert.InDelta(t, -1000.0, l.Closed()[0].Realized, 1e-9)
}

func TestShortPositionRealized(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("ETHUSDT", 100, -5, 0, ts(0)))
	assert.NoError(t, l.Close("ETHUSDT", 90, -5, 0, ts(1)))

	lot := l.Closed()[0]
	// (90-100) * -5 = +50
	assert.InDelta(t, 50.0, lot.Realized, 1e-9)
	assert.InDelta(t, 100_050.0, l.Cash(), 1e-9)
}

func TestOpenRejectedWhenCashFloorBreached(t *testing.T) {
	l := NewLedger(100, 1, 0)
	err := l.Open("BTCUSDT", 10, 11, 0, ts(0))
	assert.ErrorIs(t, err, ErrInsufficientCash)
	// 拒单不落账
	assert.Equal(t, 100.0, l.Cash())
	assert.Empty(t, l.Positions())
	assert.Empty(t, l.Transactions())
}

func TestOpenOppositeDirectionRejected(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 100, 0, ts(0)))
	err := l.Open("BTCUSDT", 10, -50, 0, ts(1))
	assert.ErrorIs(t, err, ErrOppositeDirection)
}

func TestCloseValidation(t *testing.T) {
	l := NewLedger(100_000, 1, 0)

	assert.ErrorIs(t, l.Close("BTCUSDT", 10, 100, 0, ts(0)), ErrNoPosition)

	assert.NoError(t, l.Open("BTCUSDT", 10, 100, 0, ts(0)))
	assert.ErrorIs(t, l.Close("BTCUSDT", 10, -100, 0, ts(1)), ErrDirectionMismatch)
	assert.ErrorIs(t, l.Close("BTCUSDT", 10, 200, 0, ts(1)), ErrExceedsPosition)
}

func TestLeveragedDepositAndEquity(t *testing.T) {
	// 10 倍杠杆，10% 保证金率：名义 10*100*10=10000，保证金 1000。
	l := NewLedger(5_000, 10, 0.1)
	assert.NoError(t, l.Open("BTCUSDT", 100, 10, 0, ts(0)))

	p, _ := l.Position("BTCUSDT")
	assert.InDelta(t, 1000.0, p.Deposit, 1e-9)
	assert.InDelta(t, 4_000.0, l.Cash(), 1e-9)
	// 估值价未变，权益 = 现金 + 保证金
	assert.InDelta(t, 5_000.0, l.Equity(), 1e-9)

	l.MarkToMarket("BTCUSDT", 105)
	// 浮盈 (105-100)*10*10 = 500
	assert.InDelta(t, 5_500.0, l.Equity(), 1e-9)

	assert.NoError(t, l.Close("BTCUSDT", 105, 10, 0, ts(1)))
	// 退保证金 1000 + 盈亏 500
	assert.InDelta(t, 5_500.0, l.Cash(), 1e-9)
	assert.InDelta(t, 5_500.0, l.Equity(), 1e-9)
}

func TestLockUnlockAndAvailable(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 100, 0, ts(0)))

	assert.Equal(t, 100.0, l.Available("BTCUSDT"))
	assert.NoError(t, l.Lock("BTCUSDT", 60))
	assert.Equal(t, 40.0, l.Available("BTCUSDT"))

	// 冻结超出持仓
	assert.ErrorIs(t, l.Lock("BTCUSDT", 50), ErrExceedsPosition)

	l.Unlock("BTCUSDT", 60)
	assert.Equal(t, 100.0, l.Available("BTCUSDT"))

	// 过量解锁钳到 0
	l.Unlock("BTCUSDT", 999)
	assert.Equal(t, 100.0, l.Available("BTCUSDT"))

	assert.ErrorIs(t, l.Lock("NOPE", 1), ErrNoPosition)
	assert.Equal(t, 0.0, l.Available("NOPE"))
}

func TestMarkToMarketSkipsInvalidPrice(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 100, 0, ts(0)))

	l.MarkToMarket("BTCUSDT", math.NaN())
	p, _ := l.Position("BTCUSDT")
	assert.Equal(t, 10.0, p.Price)

	l.MarkToMarket("BTCUSDT", -1)
	assert.Equal(t, 10.0, p.Price)

	l.MarkToMarket("BTCUSDT", 11)
	assert.Equal(t, 11.0, p.Price)
}

func TestSnapshotAppendsCurve(t *testing.T) {
	l := NewLedger(1_000, 1, 0)
	snap := l.Snapshot(ts(0))
	assert.Equal(t, 1_000.0, snap.Equity)
	assert.Len(t, l.Curve(), 1)

	assert.NoError(t, l.Open("BTCUSDT", 10, 10, 0, ts(0)))
	l.Snapshot(ts(1))
	assert.Len(t, l.Curve(), 2)
	assert.InDelta(t, 900.0, l.Curve()[1].Cash, 1e-9)
	assert.InDelta(t, 1_000.0, l.Curve()[1].Equity, 1e-9)
}

func TestPositionsKeepInsertionOrder(t *testing.T) {
	l := NewLedger(100_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 1, 0, ts(0)))
	assert.NoError(t, l.Open("ETHUSDT", 10, 1, 0, ts(0)))
	assert.NoError(t, l.Open("SOLUSDT", 10, 1, 0, ts(0)))

	var got []string
	for _, p := range l.Positions() {
		got = append(got, p.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, got)

	assert.NoError(t, l.Close("ETHUSDT", 10, 1, 0, ts(1)))
	got = got[:0]
	for _, p := range l.Positions() {
		got = append(got, p.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, got)
}

func TestTransactionsRecordCashAfter(t *testing.T) {
	l := NewLedger(1_000, 1, 0)
	assert.NoError(t, l.Open("BTCUSDT", 10, 10, 1, ts(0)))
	assert.NoError(t, l.Close("BTCUSDT", 11, 10, 1, ts(1)))

	txns := l.Transactions()
	assert.Len(t, txns, 2)
	assert.InDelta(t, 899.0, txns[0].CashAfter, 1e-9)
	assert.InDelta(t, 1_008.0, txns[1].CashAfter, 1e-9)
	assert.InDelta(t, 10.0, txns[1].Realized, 1e-9)
}
