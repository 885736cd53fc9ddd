package indicator

import "math"

// SMA 简单移动平均，前 period-1 个值未定义
func SMA(x []float64, period int) []float64 {
	return rolling(x, period, mean)
}

// RollingStd 滚动样本标准差，前 period-1 个值未定义
func RollingStd(x []float64, period int) []float64 {
	return rolling(x, period, sampleStd)
}

// RollingMax 滚动最大值
func RollingMax(x []float64, period int) []float64 {
	return rolling(x, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Max(m, v)
		}
		return m
	})
}

// RollingMin 滚动最小值
func RollingMin(x []float64, period int) []float64 {
	return rolling(x, period, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			m = math.Min(m, v)
		}
		return m
	})
}

// RollingSum 滚动求和
func RollingSum(x []float64, period int) []float64 {
	return rolling(x, period, sum)
}

// EMA 指数移动平均 (alpha = 2/(period+1))。
// 递推从第一个有效值开始，有效样本数不足 period 时输出未定义，
// 与同周期的滚动指标保持相同的预热长度。
func EMA(x []float64, period int) []float64 {
	out := nanSeries(len(x))
	if period <= 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	prev := math.NaN()
	count := 0
	for i, v := range x {
		if Defined(v) {
			count++
			if math.IsNaN(prev) {
				prev = v
			} else {
				prev = alpha*v + (1-alpha)*prev
			}
		}
		if count >= period && Defined(prev) {
			out[i] = prev
		}
	}
	return out
}

// Wilder Wilder 平滑：alpha = 1/period 的加权平均 (含全部历史的归一化权重)，
// 有效样本数达到 period 之前未定义。缺失值只衰减权重，不计入样本。
func Wilder(x []float64, period int) []float64 {
	out := nanSeries(len(x))
	if period <= 0 {
		return out
	}
	decay := 1 - 1/float64(period)
	num, den := 0.0, 0.0
	count := 0
	for i, v := range x {
		num *= decay
		den *= decay
		if Defined(v) {
			num += v
			den++
			count++
		}
		if count >= period && den > 0 {
			out[i] = num / den
		}
	}
	return out
}

// PctChange n 期变化率
func PctChange(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	for i := n; i < len(x); i++ {
		prev := x[i-n]
		if Defined(prev) && Defined(x[i]) && prev != 0 {
			out[i] = x[i]/prev - 1
		}
	}
	return out
}

// ZScore (x - 滚动均值) / 滚动标准差；标准差为 0 时未定义
func ZScore(x []float64, period int) []float64 {
	m := SMA(x, period)
	s := RollingStd(x, period)
	out := nanSeries(len(x))
	for i := range x {
		if AllDefined(x[i], m[i], s[i]) && s[i] != 0 {
			out[i] = (x[i] - m[i]) / s[i]
		}
	}
	return out
}
