package indicator

import (
	"binance-signal-bots-go/internal/models"
	"math"
)

// VWAP 滚动成交量加权平均价。窗口内已有多少历史就用多少，不要求完整预热；
// 窗口成交量为 0 时未定义。
func VWAP(bars []models.PriceBar, period int) []float64 {
	out := nanSeries(len(bars))
	if period < 1 {
		period = 1
	}
	for i := range bars {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		pv, vol := 0.0, 0.0
		for _, b := range bars[start : i+1] {
			typical := (b.High + b.Low + b.Close) / 3
			pv += typical * b.Volume
			vol += b.Volume
		}
		if vol != 0 {
			out[i] = pv / vol
		}
	}
	return out
}

// OBV 能量潮：按收盘价涨跌方向对成交量累加，第一根贡献 0
func OBV(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		dir := 0.0
		switch d := bars[i].Close - bars[i-1].Close; {
		case d > 0:
			dir = 1
		case d < 0:
			dir = -1
		}
		out[i] = out[i-1] + dir*bars[i].Volume
	}
	return out
}

// VolumeWeightedMomentum 过去 period 根 (收益率 × 成交量) 之和
func VolumeWeightedMomentum(bars []models.PriceBar, period int) []float64 {
	returns := PctChange(Closes(bars), 1)
	weighted := nanSeries(len(bars))
	for i, r := range returns {
		if Defined(r) {
			weighted[i] = r * bars[i].Volume
		}
	}
	return RollingSum(weighted, period)
}

// Volatility 收益率的滚动标准差（实现波动率）
func Volatility(x []float64, period int) []float64 {
	return RollingStd(PctChange(x, 1), period)
}

// RegressionSlope 价格对K线序号的最小二乘斜率；窗口不完整或奇异时未定义
func RegressionSlope(x []float64, period int) []float64 {
	return rolling(x, period, func(w []float64) float64 {
		n := float64(len(w))
		sx, sy, sxx, sxy := 0.0, 0.0, 0.0, 0.0
		for i, y := range w {
			xi := float64(i)
			sx += xi
			sy += y
			sxx += xi * xi
			sxy += xi * y
		}
		den := n*sxx - sx*sx
		if den == 0 {
			return math.NaN()
		}
		return (n*sxy - sx*sy) / den
	})
}
