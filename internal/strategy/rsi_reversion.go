package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"kelpie/internal/exchange"
	"kelpie/internal/market"
)

type RSIReversionParams struct {
	Symbol string  `mapstructure:"symbol"`
	Period int     `mapstructure:"period"`
	Low    float64 `mapstructure:"low"`
	High   float64 `mapstructure:"high"`
	Qty    float64 `mapstructure:"qty"`
}

// RSIReversion：RSI 跌破下轨限价开多，突破上轨平仓。
type RSIReversion struct {
	p RSIReversionParams
}

func NewRSIReversion(p RSIReversionParams) (*RSIReversion, error) {
	if p.Period <= 1 {
		return nil, fmt.Errorf("rsi_reversion 参数非法: period=%d", p.Period)
	}
	if p.Low <= 0 {
		p.Low = 30
	}
	if p.High <= 0 {
		p.High = 70
	}
	if p.Qty <= 0 {
		p.Qty = 1
	}
	return &RSIReversion{p: p}, nil
}

func (s *RSIReversion) Name() string { return "rsi_reversion" }

func (s *RSIReversion) Initialize(Context) error { return nil }

func (s *RSIReversion) OnBar(ctx Context, bar market.Candle) error {
	history := ctx.History(s.p.Symbol, s.p.Period*3)
	if len(history) <= s.p.Period {
		return nil
	}
	rsi := talib.Rsi(history.Closes(), s.p.Period)
	last := rsi[len(rsi)-1]

	pos, held := ctx.Position(s.p.Symbol)
	switch {
	case last < s.p.Low && !held:
		// 限价挂在当前收盘价下方一点，等待回踩
		_, err := ctx.SubmitOrder(OrderRequest{
			Symbol: s.p.Symbol,
			Action: exchange.ActionOpen,
			Side:   exchange.SideLong,
			Type:   exchange.OrderLimit,
			Qty:    s.p.Qty,
			Price:  bar.Close * 0.999,
		})
		return err
	case last > s.p.High && held && pos.Side() == exchange.SideLong:
		avail := ctx.Available(s.p.Symbol)
		if avail <= 0 {
			return nil
		}
		_, err := ctx.SubmitOrder(OrderRequest{
			Symbol: s.p.Symbol,
			Action: exchange.ActionClose,
			Side:   exchange.SideLong,
			Type:   exchange.OrderMarket,
			Qty:    avail,
		})
		return err
	}
	return nil
}
