package simulator

import "github.com/shopspring/decimal"

// fill 一次成交的计算结果
type fill struct {
	quantity       decimal.Decimal
	effectivePrice decimal.Decimal
	cash           decimal.Decimal // 买入花费或卖出所得
	profitLoss     decimal.Decimal
}

// buyFill 花费 min(balance, total×delta) 现金，以 price×(1+cost) 买入
func buyFill(balance, total, delta, price, cost decimal.Decimal) (fill, bool) {
	cash := decimal.Min(balance, total.Mul(delta))
	if !cash.IsPositive() {
		return fill{}, false
	}
	eff := price.Mul(decimal.NewFromInt(1).Add(cost))
	return fill{
		quantity:       cash.Div(eff),
		effectivePrice: eff,
		cash:           cash,
	}, true
}

// sellFill 卖出持仓的 min(1, |delta|/当前比例)，当前比例为 0 时全部卖出，以 price×(1-cost) 成交。
// 盈亏只是 qty×(成交价-报价) 的近似值，不追踪持仓成本。
func sellFill(held, currentFrac, absDelta, price, cost decimal.Decimal) (fill, bool) {
	if !held.IsPositive() {
		return fill{}, false
	}
	ratio := decimal.NewFromInt(1)
	if currentFrac.IsPositive() {
		ratio = decimal.Min(ratio, absDelta.Div(currentFrac))
	}
	qty := held.Mul(ratio)
	eff := price.Mul(decimal.NewFromInt(1).Sub(cost))
	return fill{
		quantity:       qty,
		effectivePrice: eff,
		cash:           qty.Mul(eff),
		profitLoss:     qty.Mul(eff.Sub(price)),
	}, true
}
