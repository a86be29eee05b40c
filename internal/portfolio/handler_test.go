package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kelpie/internal/event"
	"kelpie/internal/exchange"
	"kelpie/internal/market"
)

func newHandlerRig(t *testing.T, candles []market.Candle) (*event.Engine, *market.MemoryFeed, *Ledger) {
	t.Helper()
	eng := event.NewEngine()
	feed := market.NewMemoryFeed("BTCUSDT", candles)
	ledger := NewLedger(100_000, 1, 0)
	NewHandler(eng, feed, ledger).Attach()
	eng.Run()
	t.Cleanup(func() {
		eng.Stop()
		eng.Join()
	})
	return eng, feed, ledger
}

func handlerBar(openMs int64, o, h, lo, c float64) market.Candle {
	return market.Candle{
		OpenTime: openMs, CloseTime: openMs + 3_599_999,
		Open: o, High: h, Low: lo, Close: c, Volume: 1,
	}
}

func TestHandlerOpenAndCloseViaExecution(t *testing.T) {
	eng, _, ledger := newHandlerRig(t, nil)

	eng.Put(event.New(event.TypeExecution, "BTCUSDT", ts(0), exchange.Execution{
		OrderID: "o1", Symbol: "BTCUSDT",
		Action: exchange.ActionOpen, Side: exchange.SideLong,
		LastQty: 2, LastPx: 100, Commission: 1, Time: ts(0),
	}))
	eng.WaitIdle()

	p, ok := ledger.Position("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 2.0, p.Qty)
	assert.InDelta(t, 100_000-200-1, ledger.Cash(), 1e-9)

	assert.NoError(t, ledger.Lock("BTCUSDT", 2))
	eng.Put(event.New(event.TypeExecution, "BTCUSDT", ts(1), exchange.Execution{
		OrderID: "o2", Symbol: "BTCUSDT",
		Action: exchange.ActionClose, Side: exchange.SideLong,
		LastQty: 2, LastPx: 110, Commission: 1, Time: ts(1),
	}))
	eng.WaitIdle()

	_, ok = ledger.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Len(t, ledger.Closed(), 1)
	assert.InDelta(t, 20.0, ledger.Closed()[0].Realized, 1e-9)
	assert.InDelta(t, 100_000+20-2, ledger.Cash(), 1e-9)
}

func TestHandlerShortExecutionSignsQty(t *testing.T) {
	eng, _, ledger := newHandlerRig(t, nil)

	eng.Put(event.New(event.TypeExecution, "ETHUSDT", ts(0), exchange.Execution{
		OrderID: "o1", Symbol: "ETHUSDT",
		Action: exchange.ActionOpen, Side: exchange.SideShort,
		LastQty: 3, LastPx: 50, Time: ts(0),
	}))
	eng.WaitIdle()

	p, ok := ledger.Position("ETHUSDT")
	assert.True(t, ok)
	assert.Equal(t, -3.0, p.Qty)
	assert.Equal(t, exchange.SideShort, p.Side())
}

func TestHandlerRecallUnlocksCloseOnly(t *testing.T) {
	eng, _, ledger := newHandlerRig(t, nil)

	eng.Put(event.New(event.TypeExecution, "BTCUSDT", ts(0), exchange.Execution{
		OrderID: "o1", Symbol: "BTCUSDT",
		Action: exchange.ActionOpen, Side: exchange.SideLong,
		LastQty: 5, LastPx: 100, Time: ts(0),
	}))
	eng.WaitIdle()
	assert.NoError(t, ledger.Lock("BTCUSDT", 5))
	assert.Equal(t, 0.0, ledger.Available("BTCUSDT"))

	// 开仓单撤回不触碰冻结
	eng.Put(event.New(event.TypeRecall, "BTCUSDT", ts(1), exchange.RecallNotice{
		OrderID: "o2", Symbol: "BTCUSDT", Action: exchange.ActionOpen, Qty: 5, Time: ts(1),
	}))
	eng.WaitIdle()
	assert.Equal(t, 0.0, ledger.Available("BTCUSDT"))

	eng.Put(event.New(event.TypeRecall, "BTCUSDT", ts(1), exchange.RecallNotice{
		OrderID: "o3", Symbol: "BTCUSDT", Action: exchange.ActionClose, Qty: 5, Time: ts(1),
	}))
	eng.WaitIdle()
	assert.Equal(t, 5.0, ledger.Available("BTCUSDT"))
}

func TestHandlerTimeMarksAndSnapshots(t *testing.T) {
	candles := []market.Candle{
		handlerBar(0, 100, 105, 95, 102),
		handlerBar(3_600_000, 102, 112, 101, 110),
	}
	eng, feed, ledger := newHandlerRig(t, candles)

	b1, ok := feed.Next()
	assert.True(t, ok)
	eng.Put(event.New(event.TypeExecution, "BTCUSDT", b1.CloseAt(), exchange.Execution{
		OrderID: "o1", Symbol: "BTCUSDT",
		Action: exchange.ActionOpen, Side: exchange.SideLong,
		LastQty: 10, LastPx: 100, Time: b1.CloseAt(),
	}))
	eng.Put(event.New(event.TypeTime, "", b1.CloseAt(), nil))
	eng.WaitIdle()

	p, _ := ledger.Position("BTCUSDT")
	assert.Equal(t, 102.0, p.Price)
	assert.Len(t, ledger.Curve(), 1)
	assert.InDelta(t, 100_000+(102.0-100)*10, ledger.Curve()[0].Equity, 1e-9)

	b2, ok := feed.Next()
	assert.True(t, ok)
	eng.Put(event.New(event.TypeTime, "", b2.CloseAt(), nil))
	eng.WaitIdle()

	assert.Equal(t, 110.0, p.Price)
	assert.Len(t, ledger.Curve(), 2)
	assert.Equal(t, b2.CloseAt(), ledger.Curve()[1].Time)
	assert.InDelta(t, 100_000+100.0, ledger.Curve()[1].Equity, 1e-9)
}

func TestHandlerBadPayloadReturnsError(t *testing.T) {
	eng := event.NewEngine()
	feed := market.NewMemoryFeed("BTCUSDT", nil)
	h := NewHandler(eng, feed, NewLedger(1_000, 1, 0))

	err := h.onExecution(event.New(event.TypeExecution, "", time.Now(), "not-an-execution"), nil)
	assert.Error(t, err)
	err = h.onRecall(event.New(event.TypeRecall, "", time.Now(), 42), nil)
	assert.Error(t, err)
}
