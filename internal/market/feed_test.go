package market

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func feedCandles(n int) Candles {
	out := make(Candles, n)
	for i := range out {
		px := float64(100 + i)
		out[i] = Candle{
			OpenTime:  int64(i) * 3_600_000,
			CloseTime: int64(i)*3_600_000 + 3_599_999,
			Open:      px, High: px + 1, Low: px - 1, Close: px, Volume: 1,
		}
	}
	return out
}

func TestMemoryFeedCursor(t *testing.T) {
	f := NewMemoryFeed("BTCUSDT", feedCandles(3))

	// 未推进之前没有当前 K 线
	_, err := f.Current("BTCUSDT")
	assert.ErrorIs(t, err, ErrNoCurrentBar)
	assert.Equal(t, 3, f.Remaining())

	b, ok := f.Next()
	assert.True(t, ok)
	assert.Equal(t, 100.0, b.Close)
	assert.Equal(t, 2, f.Remaining())

	cur, err := f.Current("BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, b, cur)

	f.Next()
	f.Next()
	_, ok = f.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, f.Remaining())

	// 耗尽后 Current 停在最后一根
	cur, err = f.Current("BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, 102.0, cur.Close)
}

func TestMemoryFeedCurrentRejectsOtherSymbol(t *testing.T) {
	f := NewMemoryFeed("BTCUSDT", feedCandles(1))
	f.Next()
	_, err := f.Current("ETHUSDT")
	assert.ErrorIs(t, err, ErrNoCurrentBar)
}

func TestMemoryFeedHistory(t *testing.T) {
	f := NewMemoryFeed("BTCUSDT", feedCandles(5))

	assert.Nil(t, f.History("BTCUSDT", 3))

	f.Next()
	f.Next()
	f.Next() // cursor 指向第三根

	h := f.History("BTCUSDT", 2)
	assert.Len(t, h, 2)
	assert.Equal(t, 101.0, h[0].Close)
	assert.Equal(t, 102.0, h[1].Close)

	// 请求超过已推进数量时截到开头
	h = f.History("BTCUSDT", 10)
	assert.Len(t, h, 3)

	assert.Nil(t, f.History("ETHUSDT", 2))

	// 返回的是拷贝，修改不影响内部数据
	h[0].Close = -1
	again := f.History("BTCUSDT", 10)
	assert.Equal(t, 100.0, again[0].Close)
}

func TestCandleValid(t *testing.T) {
	good := Candle{Open: 1, High: 2, Low: 0.5, Close: 1.5}
	assert.True(t, good.Valid())

	nan := good
	nan.Low = math.NaN()
	assert.False(t, nan.Valid())

	zero := good
	zero.Open = 0
	assert.False(t, zero.Valid())
}

func TestCandlesCloses(t *testing.T) {
	cs := feedCandles(3)
	assert.Equal(t, []float64{100, 101, 102}, cs.Closes())
}
