package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"kelpie/internal/exchange"
	"kelpie/internal/market"
)

// SMACrossParams 通过模板 params 注入。
type SMACrossParams struct {
	Symbol string  `mapstructure:"symbol"`
	Fast   int     `mapstructure:"fast"`
	Slow   int     `mapstructure:"slow"`
	Qty    float64 `mapstructure:"qty"`
}

// SMACross 是双均线交叉策略：金叉市价开多，死叉平仓。
type SMACross struct {
	p SMACrossParams
}

func NewSMACross(p SMACrossParams) (*SMACross, error) {
	if p.Fast <= 0 || p.Slow <= 0 || p.Fast >= p.Slow {
		return nil, fmt.Errorf("sma_cross 参数非法: fast=%d slow=%d", p.Fast, p.Slow)
	}
	if p.Qty <= 0 {
		p.Qty = 1
	}
	return &SMACross{p: p}, nil
}

func (s *SMACross) Name() string { return "sma_cross" }

func (s *SMACross) Initialize(Context) error { return nil }

func (s *SMACross) OnBar(ctx Context, bar market.Candle) error {
	history := ctx.History(s.p.Symbol, s.p.Slow+1)
	if len(history) < s.p.Slow+1 {
		return nil
	}
	closes := history.Closes()
	fast := talib.Sma(closes, s.p.Fast)
	slow := talib.Sma(closes, s.p.Slow)
	n := len(closes) - 1
	goldenNow := fast[n] > slow[n]
	goldenPrev := fast[n-1] > slow[n-1]

	pos, held := ctx.Position(s.p.Symbol)
	switch {
	case goldenNow && !goldenPrev && !held:
		_, err := ctx.SubmitOrder(OrderRequest{
			Symbol: s.p.Symbol,
			Action: exchange.ActionOpen,
			Side:   exchange.SideLong,
			Type:   exchange.OrderMarket,
			Qty:    s.p.Qty,
		})
		return err
	case !goldenNow && goldenPrev && held && pos.Side() == exchange.SideLong:
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
