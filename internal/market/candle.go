package market

import (
	"math"
	"time"
)

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

func (c Candle) OpenAt() time.Time  { return time.UnixMilli(c.OpenTime) }
func (c Candle) CloseAt() time.Time { return time.UnixMilli(c.CloseTime) }

// Valid 报告四个价位是否都可用。行情断档时上游可能给出 NaN，
// 撮合与逐 K 估值都要先检查。
func (c Candle) Valid() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || v <= 0 {
			return false
		}
	}
	return true
}

type Candles []Candle

// Closes 返回收盘价序列，供 talib 指标计算使用。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}
