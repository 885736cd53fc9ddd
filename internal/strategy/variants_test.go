package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonchianNeedsStrictBreak(t *testing.T) {
	closes := linearCloses(60, 100, 0)
	// barsFromCloses 的最高价为 收盘价+1，上一根K线的通道上沿是 101
	atUpper := single(t, "donchian", barsFromCloses(append(closes, 101), constVolume))
	assert.Equal(t, 0.4, atUpper.TargetPosition)
	assert.NotContains(t, atUpper.Reason, "breakout")

	above := single(t, "donchian", barsFromCloses(append(closes, 101.01), constVolume))
	assert.Equal(t, 0.8, above.TargetPosition)
	assert.Contains(t, above.Reason, "breakout up")
}

func TestDonchianDecide(t *testing.T) {
	s := &donchian{channel: 48, atrPeriod: 14, atrK: 2}
	base := channelState{close: 100, prevClose: 100, upper: 105, prevUpper: 105, lower: 95, prevLower: 95, mid: 100, atr: 1, ema: 99}

	tests := []struct {
		name   string
		modify func(st *channelState)
		target float64
		stop   float64
	}{
		{"equal to upper is not a breakout", func(st *channelState) { st.close = 105 }, 0.4, 98},
		{"breakout up", func(st *channelState) { st.close = 105.5 }, 0.8, 103.5},
		{"already above upper on previous bar", func(st *channelState) { st.close, st.prevClose = 106, 106 }, 0.4, 98},
		{"breakout down", func(st *channelState) { st.close = 94 }, 0.0, math.NaN()},
		{"equal to lower is not a breakout", func(st *channelState) { st.close, st.ema = 95, 96 }, 0.1, math.NaN()},
		{"below ema", func(st *channelState) { st.close = 98 }, 0.1, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := base
			tt.modify(&st)
			sig := s.decide(st)
			assert.Equal(t, tt.target, sig.TargetPosition)
			if math.IsNaN(tt.stop) {
				assert.Nil(t, sig.StopLoss)
			} else {
				require.NotNil(t, sig.StopLoss)
				assert.InDelta(t, tt.stop, *sig.StopLoss, 1e-9)
			}
		})
	}
}

func TestBBZScoreDecide(t *testing.T) {
	s := &bbZScore{entry: 2, rsiConfirm: 30, adxPause: 30}

	tests := []struct {
		name       string
		z, rsi     float64
		adx        float64
		target     float64
		confidence float64
	}{
		{"paused by adx", -3, 20, 30, 0.0, 0.2},
		{"oversold at entry", -2, 25, 10, 0.5 + 0.3*(2.0/3.0), 0.6},
		{"oversold deeper", -2.5, 25, 10, 0.5 + 0.3*(2.5/3.0), 0.6},
		{"oversold capped", -4, 25, 10, 0.8, 0.6},
		{"oversold without rsi confirm", -2.5, 35, 10, 0.2, 0.3},
		{"overbought", 2, 60, 10, 0.0, 0.5},
		{"mild discount", -1, 45, 10, 0.2, 0.3},
		{"nothing", 0.5, 55, 10, 0.0, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.decide(tt.z, 90, tt.rsi, tt.adx)
			assert.InDelta(t, tt.target, sig.TargetPosition, 1e-9)
			assert.Equal(t, tt.confidence, sig.Confidence)
		})
	}

	deep := s.decide(-2.5, 90, 25, 10)
	require.NotNil(t, deep.StopLoss)
	assert.InDelta(t, 90*0.98, *deep.StopLoss, 1e-9)
	assert.Greater(t, deep.TargetPosition, s.decide(-2, 90, 25, 10).TargetPosition)
}

func TestSqueezeDecide(t *testing.T) {
	s := &squeeze{lowPct: 0.25, atrK: 1.5}

	tests := []struct {
		name   string
		st     bandState
		target float64
		stop   float64
	}{
		{"waiting in squeeze", bandState{close: 101, mid: 100, percentile: 0.1, expanding: false, atr: 2}, 0.1, math.NaN()},
		{"release up", bandState{close: 101, mid: 100, percentile: 0.2, expanding: true, atr: 2}, 0.7, 98},
		{"release down", bandState{close: 99, mid: 100, percentile: 0.2, expanding: true, atr: 2}, 0.0, math.NaN()},
		{"outside squeeze above middle", bandState{close: 101, mid: 100, percentile: 0.8, expanding: true, atr: 2}, 0.3, math.NaN()},
		{"outside squeeze below middle", bandState{close: 99, mid: 100, percentile: 0.8, expanding: false, atr: 2}, 0.0, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.decide(tt.st)
			assert.Equal(t, tt.target, sig.TargetPosition)
			if math.IsNaN(tt.stop) {
				assert.Nil(t, sig.StopLoss)
			} else {
				require.NotNil(t, sig.StopLoss)
				assert.InDelta(t, tt.stop, *sig.StopLoss, 1e-9)
			}
		})
	}

	// 分位恰好等于阈值仍算收缩
	assert.Equal(t, 0.1, s.decide(bandState{close: 101, mid: 100, percentile: 0.25}).TargetPosition)
}

func TestRegimeDecide(t *testing.T) {
	s := &regime{adxThreshold: 25}

	tests := []struct {
		name   string
		kind   string
		slope  float64
		close  float64
		target float64
	}{
		{"high vol risk off", regimeHighVol, 1, 110, 0.0},
		{"trend up above ema", regimeTrend, 1, 110, 0.7},
		{"trend up below ema", regimeTrend, 1, 90, 0.3},
		{"trend down", regimeTrend, -1, 90, 0.0},
		{"range", regimeRange, 0, 100, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.decide(tt.kind, tt.slope, 100, 30, tt.close)
			assert.Equal(t, tt.target, sig.TargetPosition)
			assert.Contains(t, sig.Reason, tt.kind)
		})
	}
}

func TestRegimeHighVolatilityGoesFlat(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		amp := 0.01
		if i >= 130 {
			amp = 5
		}
		closes[i] = 100 + amp*math.Pow(-1, float64(i))
	}
	sig := single(t, "regime", barsFromCloses(closes, constVolume))
	assert.Equal(t, 0.0, sig.TargetPosition)
	assert.Contains(t, sig.Reason, regimeHighVol)
}

func TestVolMomentumDecide(t *testing.T) {
	s := &volMomentum{}

	tests := []struct {
		name       string
		mom        float64
		obvUp      bool
		volZ       float64
		target     float64
		confidence float64
	}{
		{"strong", 50, true, 1.5, 0.8, 0.7},
		{"bullish", 50, true, 0.5, 0.5, 0.5},
		{"bearish", -50, false, 2, 0.0, 0.5},
		{"divergence", 50, false, 0, 0.2, 0.3},
		{"falling price with obv up", -50, true, 0, 0.1, 0.3},
		{"flat momentum", 0, true, 0, 0.1, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.decide(tt.mom, tt.obvUp, tt.volZ)
			assert.Equal(t, tt.target, sig.TargetPosition)
			assert.Equal(t, tt.confidence, sig.Confidence)
		})
	}
}

func TestVolMomentumBearish(t *testing.T) {
	sig := single(t, "vol_momentum", barsFromCloses(linearCloses(100, 300, -1), cyclicVolume))
	assert.Equal(t, 0.0, sig.TargetPosition)
	assert.Contains(t, sig.Reason, "bearish")
}
