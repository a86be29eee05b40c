package exchange

// SlippageFunc 在成交时对名义价格做一次调整，模拟真实滑点。
// 返回调整后的成交价。
type SlippageFunc func(o *Order, price float64) float64

// NoSlippage 不做任何调整。
func NoSlippage() SlippageFunc {
	return func(_ *Order, price float64) float64 { return price }
}

// BpsSlippage 按基点对成交价做不利方向的调整：
// 买入抬价，卖出压价。
func BpsSlippage(bps float64) SlippageFunc {
	if bps < 0 {
		bps = 0
	}
	return func(o *Order, price float64) float64 {
		adj := price * bps / 10000
		if o.isBuy() {
			return price + adj
		}
		return price - adj
	}
}
