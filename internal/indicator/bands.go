package indicator

import "binance-signal-bots-go/internal/models"

// BollingerBands 布林带及其派生量
type BollingerBands struct {
	Middle    []float64
	Upper     []float64
	Lower     []float64
	Bandwidth []float64 // (upper-lower)/middle
	ZScore    []float64 // (price-middle)/std，std 为 0 时未定义
}

// Bollinger 计算 period 周期、k 倍标准差的布林带
func Bollinger(x []float64, period int, k float64) BollingerBands {
	n := len(x)
	mid := SMA(x, period)
	std := RollingStd(x, period)
	bb := BollingerBands{
		Middle:    mid,
		Upper:     nanSeries(n),
		Lower:     nanSeries(n),
		Bandwidth: nanSeries(n),
		ZScore:    nanSeries(n),
	}
	for i := 0; i < n; i++ {
		if !AllDefined(mid[i], std[i]) {
			continue
		}
		bb.Upper[i] = mid[i] + k*std[i]
		bb.Lower[i] = mid[i] - k*std[i]
		if mid[i] != 0 {
			bb.Bandwidth[i] = (bb.Upper[i] - bb.Lower[i]) / mid[i]
		}
		if std[i] != 0 && Defined(x[i]) {
			bb.ZScore[i] = (x[i] - mid[i]) / std[i]
		}
	}
	return bb
}

// DonchianChannel 唐奇安通道
type DonchianChannel struct {
	Upper []float64
	Lower []float64
	Mid   []float64
}

// Donchian 过去 period 根K线的最高价/最低价及中轴
func Donchian(bars []models.PriceBar, period int) DonchianChannel {
	upper := RollingMax(Highs(bars), period)
	lower := RollingMin(Lows(bars), period)
	mid := nanSeries(len(bars))
	for i := range mid {
		if AllDefined(upper[i], lower[i]) {
			mid[i] = (upper[i] + lower[i]) / 2
		}
	}
	return DonchianChannel{Upper: upper, Lower: lower, Mid: mid}
}
