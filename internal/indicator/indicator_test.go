package indicator

import (
	"binance-signal-bots-go/internal/models"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeBars 生成确定性的带趋势和波动的K线
func makeBars(n int) []models.PriceBar {
	bars := make([]models.PriceBar, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 100 + 0.1*float64(i) + 3*math.Sin(float64(i)/5)
		bars[i] = models.PriceBar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Symbol:    "BTCUSDT",
			Open:      c - 0.5,
			High:      c + 1 + 0.3*math.Cos(float64(i)),
			Low:       c - 1 - 0.2*math.Sin(float64(i)),
			Close:     c,
			Volume:    1000 + 200*math.Sin(float64(i)/3),
		}
	}
	return bars
}

func assertWarmup(t *testing.T, name string, out []float64, warmup int) {
	t.Helper()
	for i, v := range out {
		if i < warmup {
			assert.False(t, Defined(v), "%s[%d] should be undefined", name, i)
		} else {
			assert.True(t, Defined(v), "%s[%d] should be defined", name, i)
		}
	}
}

func TestRollingWarmupLengthsMatch(t *testing.T) {
	bars := makeBars(120)
	closes := Closes(bars)
	period := 20

	assertWarmup(t, "sma", SMA(closes, period), period-1)
	assertWarmup(t, "std", RollingStd(closes, period), period-1)
	assertWarmup(t, "ema", EMA(closes, period), period-1)
	assertWarmup(t, "atr", ATR(bars, period), period-1)

	bb := Bollinger(closes, period, 2)
	assertWarmup(t, "bb.mid", bb.Middle, period-1)
	assertWarmup(t, "bb.upper", bb.Upper, period-1)
	assertWarmup(t, "bb.z", bb.ZScore, period-1)
	assertWarmup(t, "bb.bw", bb.Bandwidth, period-1)

	dc := Donchian(bars, period)
	assertWarmup(t, "donchian.upper", dc.Upper, period-1)
	assertWarmup(t, "donchian.mid", dc.Mid, period-1)

	assertWarmup(t, "slope", RegressionSlope(closes, period), period-1)
}

func TestReturnBasedWarmups(t *testing.T) {
	bars := makeBars(100)
	closes := Closes(bars)

	// 收益率序列本身少一根，因此预热多一根
	assertWarmup(t, "rsi", RSI(closes, 14), 14)
	assertWarmup(t, "volatility", Volatility(closes, 24), 24)
	assertWarmup(t, "vwm", VolumeWeightedMomentum(bars, 12), 12)
}

func TestSMAAndEMAValues(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	sma := SMA(x, 3)
	assert.InDelta(t, 2.0, sma[2], 1e-12)
	assert.InDelta(t, 4.0, sma[4], 1e-12)

	ema := EMA(x, 3)
	// alpha=0.5, 从第一个值开始递推: 1, 1.5, 2.25, 3.125, 4.0625
	assert.False(t, Defined(ema[1]))
	assert.InDelta(t, 2.25, ema[2], 1e-12)
	assert.InDelta(t, 4.0625, ema[4], 1e-12)
}

func TestRSIBounds(t *testing.T) {
	bars := makeBars(300)
	for _, v := range RSI(Closes(bars), 14) {
		if Defined(v) {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestRSIAllGainsIs100(t *testing.T) {
	x := make([]float64, 30)
	for i := range x {
		x[i] = float64(i + 1)
	}
	assert.Equal(t, 100.0, Last(RSI(x, 14)))

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 10
	}
	assert.Equal(t, 50.0, Last(RSI(flat, 14)))
}

func TestBollingerZScoreZeroAtMean(t *testing.T) {
	x := []float64{1, 3, 1, 3, 2}
	bb := Bollinger(x, 5, 2)
	assert.InDelta(t, 2.0, bb.Middle[4], 1e-12)
	assert.InDelta(t, 0.0, bb.ZScore[4], 1e-12)
	assert.InDelta(t, bb.Upper[4]-bb.Middle[4], bb.Middle[4]-bb.Lower[4], 1e-12)

	flat := []float64{5, 5, 5, 5, 5}
	assert.False(t, Defined(Bollinger(flat, 5, 2).ZScore[4]), "zero std must be undefined")
}

func TestMACDHistogramIsLineMinusSignal(t *testing.T) {
	closes := Closes(makeBars(120))
	m := MACD(closes, 12, 26, 9)
	assertWarmup(t, "macd.line", m.Line, 25)
	assertWarmup(t, "macd.signal", m.Signal, 33)
	i := len(closes) - 1
	assert.InDelta(t, m.Line[i]-m.Signal[i], m.Histogram[i], 1e-12)
}

func TestADXDirectionalMovementAsymmetry(t *testing.T) {
	// 持续上涨：只有 +DM，因此 +DI > -DI 且 -DI 为 0
	bars := make([]models.PriceBar, 60)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = models.PriceBar{High: p + 1, Low: p - 1, Close: p, Open: p}
	}
	res := ADX(bars, 14)
	assert.Greater(t, Last(res.PlusDI), Last(res.MinusDI))
	assert.Equal(t, 0.0, Last(res.MinusDI))
	assert.InDelta(t, 100.0, Last(res.ADX), 1e-9)
	// dx 从 period-1 开始有值，ADX 再平滑一次
	assertWarmup(t, "adx", res.ADX, 26)
}

func TestADXEqualMovesCancel(t *testing.T) {
	// 外包线：上下扩张幅度相同，+DM 与 -DM 都应被置 0
	bars := []models.PriceBar{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 7, Close: 9},
	}
	res := ADX(bars, 1)
	assert.Equal(t, 0.0, res.PlusDI[1])
	assert.Equal(t, 0.0, res.MinusDI[1])
}

func TestDonchianValues(t *testing.T) {
	bars := []models.PriceBar{
		{High: 5, Low: 1}, {High: 7, Low: 2}, {High: 6, Low: 0}, {High: 4, Low: 3},
	}
	dc := Donchian(bars, 3)
	assert.Equal(t, 7.0, dc.Upper[2])
	assert.Equal(t, 0.0, dc.Lower[2])
	assert.Equal(t, 3.5, dc.Mid[2])
	assert.Equal(t, 7.0, dc.Upper[3])
	assert.Equal(t, 0.0, dc.Lower[3])
}

func TestVWAPUsesPartialWindow(t *testing.T) {
	bars := []models.PriceBar{
		{High: 12, Low: 8, Close: 10, Volume: 1},
		{High: 22, Low: 18, Close: 20, Volume: 3},
		{High: 32, Low: 28, Close: 30, Volume: 0},
	}
	v := VWAP(bars, 2)
	assert.InDelta(t, 10.0, v[0], 1e-12)
	assert.InDelta(t, 17.5, v[1], 1e-12)
	assert.InDelta(t, 20.0, v[2], 1e-12)

	zero := VWAP([]models.PriceBar{{High: 1, Low: 1, Close: 1}}, 5)
	assert.False(t, Defined(zero[0]))
}

func TestOBV(t *testing.T) {
	bars := []models.PriceBar{
		{Close: 10, Volume: 100},
		{Close: 11, Volume: 50},
		{Close: 11, Volume: 70},
		{Close: 9, Volume: 30},
	}
	assert.Equal(t, []float64{0, 50, 50, 20}, OBV(bars))
}

func TestRegressionSlope(t *testing.T) {
	x := []float64{1, 3, 5, 7, 9, 11}
	s := RegressionSlope(x, 4)
	assert.False(t, Defined(s[2]))
	assert.InDelta(t, 2.0, s[3], 1e-12)
	assert.InDelta(t, 2.0, s[5], 1e-12)

	single := RegressionSlope([]float64{1, 2}, 1)
	assert.False(t, Defined(single[1]), "one-point window is singular")
}

func TestUndefinedPropagatesThroughRolling(t *testing.T) {
	x := []float64{1, 2, math.NaN(), 4, 5, 6}
	s := SMA(x, 2)
	assert.False(t, Defined(s[2]))
	assert.False(t, Defined(s[3]))
	assert.InDelta(t, 4.5, s[4], 1e-12)
}

func TestAtAndLast(t *testing.T) {
	x := []float64{1, 2, 3}
	require.Equal(t, 3.0, Last(x))
	require.Equal(t, 2.0, At(x, 1))
	assert.False(t, Defined(At(x, 5)))
	assert.False(t, Defined(Last(nil)))
}
