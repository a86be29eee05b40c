package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kelpie/internal/exchange"
	"kelpie/internal/market"
	"kelpie/internal/portfolio"
)

// fakeContext 喂固定历史、记录下单请求。
type fakeContext struct {
	hist   market.Candles
	pos    *portfolio.Position
	avail  float64
	orders []OrderRequest
}

func (f *fakeContext) Time() time.Time { return time.Unix(0, 0) }

func (f *fakeContext) Current(string) (market.Candle, error) {
	if len(f.hist) == 0 {
		return market.Candle{}, market.ErrNoCurrentBar
	}
	return f.hist[len(f.hist)-1], nil
}

func (f *fakeContext) History(_ string, n int) market.Candles {
	if n <= 0 || n >= len(f.hist) {
		return f.hist
	}
	return f.hist[len(f.hist)-n:]
}

func (f *fakeContext) Cash() float64               { return 1_000_000 }
func (f *fakeContext) Equity() float64             { return 1_000_000 }
func (f *fakeContext) Available(string) float64    { return f.avail }
func (f *fakeContext) Cancel(exchange.CancelMatch) {}

func (f *fakeContext) Position(string) (*portfolio.Position, bool) {
	return f.pos, f.pos != nil
}

func (f *fakeContext) SubmitOrder(req OrderRequest) (string, error) {
	f.orders = append(f.orders, req)
	return "fake-order", nil
}

func candlesFromCloses(closes ...float64) market.Candles {
	out := make(market.Candles, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime:  int64(i) * 3_600_000,
			CloseTime: int64(i)*3_600_000 + 3_599_999,
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return out
}

func TestNewSMACrossValidation(t *testing.T) {
	_, err := NewSMACross(SMACrossParams{Fast: 0, Slow: 5})
	assert.Error(t, err)
	_, err = NewSMACross(SMACrossParams{Fast: 5, Slow: 5})
	assert.Error(t, err)

	s, err := NewSMACross(SMACrossParams{Fast: 2, Slow: 3})
	assert.NoError(t, err)
	assert.Equal(t, 1.0, s.p.Qty) // qty 缺省为 1
}

func TestSMACrossGoldenCrossOpensLong(t *testing.T) {
	s, err := NewSMACross(SMACrossParams{Symbol: "BTCUSDT", Fast: 2, Slow: 3, Qty: 2})
	assert.NoError(t, err)

	ctx := &fakeContext{hist: candlesFromCloses(10, 9, 8, 20)}
	assert.NoError(t, s.OnBar(ctx, ctx.hist[len(ctx.hist)-1]))

	assert.Len(t, ctx.orders, 1)
	o := ctx.orders[0]
	assert.Equal(t, exchange.ActionOpen, o.Action)
	assert.Equal(t, exchange.SideLong, o.Side)
	assert.Equal(t, exchange.OrderMarket, o.Type)
	assert.Equal(t, 2.0, o.Qty)
}

func TestSMACrossDeathCrossClosesPosition(t *testing.T) {
	s, err := NewSMACross(SMACrossParams{Symbol: "BTCUSDT", Fast: 2, Slow: 3, Qty: 2})
	assert.NoError(t, err)

	ctx := &fakeContext{
		hist:  candlesFromCloses(8, 20, 19, 5),
		pos:   &portfolio.Position{Symbol: "BTCUSDT", Qty: 2, AvgPrice: 10},
		avail: 2,
	}
	assert.NoError(t, s.OnBar(ctx, ctx.hist[len(ctx.hist)-1]))

	assert.Len(t, ctx.orders, 1)
	assert.Equal(t, exchange.ActionClose, ctx.orders[0].Action)
	assert.Equal(t, 2.0, ctx.orders[0].Qty)
}

func TestSMACrossDeathCrossSkipsWhenLocked(t *testing.T) {
	s, err := NewSMACross(SMACrossParams{Symbol: "BTCUSDT", Fast: 2, Slow: 3})
	assert.NoError(t, err)

	ctx := &fakeContext{
		hist:  candlesFromCloses(8, 20, 19, 5),
		pos:   &portfolio.Position{Symbol: "BTCUSDT", Qty: 2, AvgPrice: 10, Locked: 2},
		avail: 0,
	}
	assert.NoError(t, s.OnBar(ctx, ctx.hist[len(ctx.hist)-1]))
	assert.Empty(t, ctx.orders)
}

func TestSMACrossWaitsForWarmup(t *testing.T) {
	s, err := NewSMACross(SMACrossParams{Symbol: "BTCUSDT", Fast: 2, Slow: 3})
	assert.NoError(t, err)

	ctx := &fakeContext{hist: candlesFromCloses(10, 11)}
	assert.NoError(t, s.OnBar(ctx, ctx.hist[len(ctx.hist)-1]))
	assert.Empty(t, ctx.orders)
}

func TestNewRSIReversionDefaults(t *testing.T) {
	_, err := NewRSIReversion(RSIReversionParams{Period: 1})
	assert.Error(t, err)

	s, err := NewRSIReversion(RSIReversionParams{Period: 14})
	assert.NoError(t, err)
	assert.Equal(t, 30.0, s.p.Low)
	assert.Equal(t, 70.0, s.p.High)
	assert.Equal(t, 1.0, s.p.Qty)
}

func TestRSIReversionOversoldPlacesLimitBuy(t *testing.T) {
	s, err := NewRSIReversion(RSIReversionParams{Symbol: "BTCUSDT", Period: 3, Qty: 1})
	assert.NoError(t, err)

	// 连跌序列把 RSI 压到下轨之下
	ctx := &fakeContext{hist: candlesFromCloses(100, 98, 95, 91, 86, 80)}
	bar := ctx.hist[len(ctx.hist)-1]
	assert.NoError(t, s.OnBar(ctx, bar))

	assert.Len(t, ctx.orders, 1)
	o := ctx.orders[0]
	assert.Equal(t, exchange.ActionOpen, o.Action)
	assert.Equal(t, exchange.OrderLimit, o.Type)
	assert.InDelta(t, bar.Close*0.999, o.Price, 1e-9)
}

func TestRSIReversionOverboughtClosesLong(t *testing.T) {
	s, err := NewRSIReversion(RSIReversionParams{Symbol: "BTCUSDT", Period: 3, Qty: 1})
	assert.NoError(t, err)

	ctx := &fakeContext{
		hist:  candlesFromCloses(80, 86, 91, 95, 98, 100),
		pos:   &portfolio.Position{Symbol: "BTCUSDT", Qty: 1, AvgPrice: 85},
		avail: 1,
	}
	assert.NoError(t, s.OnBar(ctx, ctx.hist[len(ctx.hist)-1]))

	assert.Len(t, ctx.orders, 1)
	assert.Equal(t, exchange.ActionClose, ctx.orders[0].Action)
	assert.Equal(t, exchange.OrderMarket, ctx.orders[0].Type)
}
