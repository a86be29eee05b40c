package exchange

import "github.com/shopspring/decimal"

// CommissionFunc 计算一笔成交的手续费。
type CommissionFunc func(o *Order, price, qty float64) float64

const commissionPlaces = 8

func roundCommission(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(commissionPlaces).Float64()
	return out
}

func withFloor(v, minimum float64) float64 {
	if v < minimum {
		v = minimum
	}
	return roundCommission(v)
}

// FlatCommission 每笔固定费用。
func FlatCommission(amount float64) CommissionFunc {
	return func(_ *Order, _, _ float64) float64 {
		return roundCommission(amount)
	}
}

// PerUnitCommission 按成交数量计费，floor 是最低费用。
func PerUnitCommission(rate, floor float64) CommissionFunc {
	return func(_ *Order, _, qty float64) float64 {
		return withFloor(qty*rate, floor)
	}
}

// PercentCommission 按成交额比例计费，floor 是最低费用。
func PercentCommission(rate, floor float64) CommissionFunc {
	return func(_ *Order, price, qty float64) float64 {
		return withFloor(price*qty*rate, floor)
	}
}

// DefaultCommission 是缺省配置：每笔 1 的固定费用。
func DefaultCommission() CommissionFunc {
	return FlatCommission(1)
}
