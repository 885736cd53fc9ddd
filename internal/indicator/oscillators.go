package indicator

import (
	"binance-signal-bots-go/internal/models"
	"math"
)

// RSI Wilder 平滑的相对强弱指数，取值 [0,100]。
// 平均跌幅为 0 时：有涨幅返回 100，完全无波动返回 50。
func RSI(x []float64, period int) []float64 {
	n := len(x)
	gains := nanSeries(n)
	losses := nanSeries(n)
	for i := 1; i < n; i++ {
		if !Defined(x[i]) || !Defined(x[i-1]) {
			continue
		}
		d := x[i] - x[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}

	avgGain := Wilder(gains, period)
	avgLoss := Wilder(losses, period)
	out := nanSeries(n)
	for i := range x {
		g, l := avgGain[i], avgLoss[i]
		if !AllDefined(g, l) {
			continue
		}
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// MACDResult MACD 三条线
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD 快慢 EMA 差值、其 EMA 信号线与柱状图
func MACD(x []float64, fast, slow, signal int) MACDResult {
	line := Sub(EMA(x, fast), EMA(x, slow))
	sig := EMA(line, signal)
	return MACDResult{Line: line, Signal: sig, Histogram: Sub(line, sig)}
}

// TrueRange 真实波幅；第一根K线只有 high-low
func TrueRange(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prevClose := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		}
		out[i] = tr
	}
	return out
}

// ATR 平均真实波幅 (Wilder 平滑)
func ATR(bars []models.PriceBar, period int) []float64 {
	return Wilder(TrueRange(bars), period)
}

// ADXResult ADX 及方向指标
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX 平均趋向指数。
// +DM 只有在严格大于 -DM 时保留，否则置 0；-DM 同理。
func ADX(bars []models.PriceBar, period int) ADXResult {
	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := math.Max(bars[i].High-bars[i-1].High, 0)
		down := math.Max(bars[i-1].Low-bars[i].Low, 0)
		if up > down {
			plusDM[i] = up
		}
		if down > up {
			minusDM[i] = down
		}
	}

	atr := ATR(bars, period)
	plusSmooth := Wilder(plusDM, period)
	minusSmooth := Wilder(minusDM, period)

	plusDI := nanSeries(n)
	minusDI := nanSeries(n)
	dx := nanSeries(n)
	for i := 0; i < n; i++ {
		if !AllDefined(atr[i], plusSmooth[i], minusSmooth[i]) || atr[i] == 0 {
			continue
		}
		plusDI[i] = 100 * plusSmooth[i] / atr[i]
		minusDI[i] = 100 * minusSmooth[i] / atr[i]
		if total := plusDI[i] + minusDI[i]; total != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / total
		}
	}

	return ADXResult{ADX: Wilder(dx, period), PlusDI: plusDI, MinusDI: minusDI}
}
