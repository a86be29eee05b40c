package market

import "errors"

var ErrNoCurrentBar = errors.New("no current bar")

// Feed 是撮合引擎与策略对行情的只读视角。
// Current 返回当前推进到的 K 线，History 返回含当前在内的最近 n 根。
type Feed interface {
	Current(symbol string) (Candle, error)
	History(symbol string, n int) Candles
}

// MemoryFeed 在内存 K 线序列上推进游标，驱动一次回测。
// 只在回测主 goroutine 上使用。
type MemoryFeed struct {
	symbol  string
	candles Candles
	cursor  int // 指向当前 K 线；-1 表示尚未开始
}

func NewMemoryFeed(symbol string, candles []Candle) *MemoryFeed {
	return &MemoryFeed{symbol: symbol, candles: candles, cursor: -1}
}

// Next 推进到下一根 K 线，返回 false 表示数据耗尽。
func (f *MemoryFeed) Next() (Candle, bool) {
	if f.cursor+1 >= len(f.candles) {
		return Candle{}, false
	}
	f.cursor++
	return f.candles[f.cursor], true
}

func (f *MemoryFeed) Current(symbol string) (Candle, error) {
	if symbol != f.symbol || f.cursor < 0 {
		return Candle{}, ErrNoCurrentBar
	}
	return f.candles[f.cursor], nil
}

func (f *MemoryFeed) History(symbol string, n int) Candles {
	if symbol != f.symbol || f.cursor < 0 {
		return nil
	}
	end := f.cursor + 1
	start := end - n
	if n <= 0 || start < 0 {
		start = 0
	}
	out := make(Candles, end-start)
	copy(out, f.candles[start:end])
	return out
}

// Remaining 返回尚未推进的 K 线数。
func (f *MemoryFeed) Remaining() int {
	return len(f.candles) - f.cursor - 1
}
