// Package indicator 提供纯函数形式的技术指标计算。
//
// 所有输出序列与输入逐位对齐。尚未满足回看周期的位置用 NaN 表示“未定义”，
// 调用方必须用 Defined 判断，不能把它当作数值 0 使用。
package indicator

import (
	"binance-signal-bots-go/internal/models"
	"math"
)

// Defined 判断一个指标值是否可用
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AllDefined 判断一组值是否全部可用
func AllDefined(vs ...float64) bool {
	for _, v := range vs {
		if !Defined(v) {
			return false
		}
	}
	return true
}

// Last 返回序列最后一个值，空序列返回 NaN
func Last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

// At 返回距离末尾 back 个位置的值，越界返回 NaN
func At(x []float64, back int) float64 {
	i := len(x) - 1 - back
	if i < 0 || i >= len(x) {
		return math.NaN()
	}
	return x[i]
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rolling 对长度为 period 的窗口调用 fn；窗口不完整或含未定义值时输出 NaN
func rolling(x []float64, period int, fn func(window []float64) float64) []float64 {
	out := nanSeries(len(x))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(x); i++ {
		window := x[i-period+1 : i+1]
		if !AllDefined(window...) {
			continue
		}
		out[i] = fn(window)
	}
	return out
}

func sum(w []float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s
}

func mean(w []float64) float64 {
	return sum(w) / float64(len(w))
}

// sampleStd 样本标准差 (ddof=1)
func sampleStd(w []float64) float64 {
	if len(w) < 2 {
		return math.NaN()
	}
	m := mean(w)
	ss := 0.0
	for _, v := range w {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(w)-1))
}

// Closes 提取收盘价序列
func Closes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs 提取最高价序列
func Highs(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows 提取最低价序列
func Lows(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes 提取成交量序列
func Volumes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Sub 逐位相减，任一侧未定义则结果未定义
func Sub(a, b []float64) []float64 {
	out := nanSeries(len(a))
	for i := range a {
		if i < len(b) && Defined(a[i]) && Defined(b[i]) {
			out[i] = a[i] - b[i]
		}
	}
	return out
}
