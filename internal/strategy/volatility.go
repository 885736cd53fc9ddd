package strategy

import (
	"binance-signal-bots-go/internal/indicator"
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
	"math"
)

// squeeze 布林带宽收缩后扩张的突破
type squeeze struct {
	bbPeriod  int
	bbStd     float64
	lowPct    float64
	atrPeriod int
	atrK      float64
	lookback  int
}

func newSqueeze(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &squeeze{
		bbPeriod:  p.period("bb_period", 20),
		bbStd:     p.positive("bb_std", 2.0),
		lowPct:    p.float("bandwidth_low_pct", 0.25),
		atrPeriod: p.period("atr_period", 14),
		atrK:      p.positive("atr_trail_k", 1.5),
		lookback:  p.period("lookback", 24),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *squeeze) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	last := len(bars) - 1
	closes := indicator.Closes(bars)
	bb := indicator.Bollinger(closes, s.bbPeriod, s.bbStd)
	atr := indicator.Last(indicator.ATR(bars, s.atrPeriod))

	if last < s.lookback {
		return insufficientHistory()
	}
	c := closes[last]
	mid := bb.Middle[last]
	curBW, prevBW := bb.Bandwidth[last], bb.Bandwidth[last-1]
	if !indicator.AllDefined(c, mid, curBW, prevBW, atr) {
		return insufficientHistory()
	}

	// 当前带宽在最近 lookback+1 个值中的分位
	var window []float64
	for _, bw := range bb.Bandwidth[last-s.lookback : last+1] {
		if indicator.Defined(bw) {
			window = append(window, bw)
		}
	}
	if len(window) < s.lookback/2 {
		return models.HoldSignal("bandwidth history too short"), nil
	}
	below := 0
	for _, bw := range window {
		if bw < curBW {
			below++
		}
	}
	percentile := float64(below) / float64(len(window))

	return s.decide(bandState{
		close: c, mid: mid, bandwidth: curBW, percentile: percentile,
		expanding: curBW > prevBW, atr: atr,
	}), nil
}

// bandState 最新K线的布林带宽状态
type bandState struct {
	close, mid, bandwidth float64
	percentile            float64 // 当前带宽在回看窗口中的分位
	expanding             bool
	atr                   float64
}

func (s *squeeze) decide(st bandState) models.Signal {
	isSqueeze := st.percentile <= s.lowPct

	switch {
	case isSqueeze && !st.expanding:
		return signal(0.1, 0.3, fmt.Sprintf("squeeze (bw=%.4f, pct=%.0f%%), waiting", st.bandwidth, st.percentile*100))
	case isSqueeze && st.close > st.mid:
		return withStop(signal(0.7, 0.7, fmt.Sprintf("squeeze release up (bw=%.4f)", st.bandwidth)), st.close-st.atr*s.atrK)
	case isSqueeze:
		return signal(0.0, 0.5, "squeeze release down, close")
	case st.close > st.mid:
		return signal(0.3, 0.3, "above BB middle")
	default:
		return signal(0.0, 0.2, "no signal")
	}
}

// regime 按波动率/趋势/震荡分类市场，再决定仓位
type regime struct {
	volWindow    int
	trendWindow  int
	adxPeriod    int
	volHistory   int
	adxThreshold float64
}

func newRegime(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &regime{
		volWindow:    p.period("volatility_window", 24),
		trendWindow:  p.period("trend_window", 48),
		adxPeriod:    p.period("adx_period", 14),
		volHistory:   p.period("vol_history", 96),
		adxThreshold: p.float("adx_trend_threshold", 25),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

const (
	regimeHighVol = "HIGH_VOL"
	regimeTrend   = "TREND"
	regimeRange   = "RANGE"
)

func (s *regime) classify(bars []models.PriceBar) (string, float64, float64, float64, bool) {
	closes := indicator.Closes(bars)
	vol := indicator.Volatility(closes, s.volWindow)
	curVol := indicator.Last(vol)
	slope := indicator.Last(indicator.RegressionSlope(closes, s.trendWindow))
	ema := indicator.Last(indicator.EMA(closes, s.trendWindow))
	adx := indicator.Last(indicator.ADX(bars, s.adxPeriod).ADX)
	if !indicator.AllDefined(curVol, slope, ema, adx) {
		return "", 0, 0, 0, false
	}

	start := len(vol) - s.volHistory - 1
	if start < 0 {
		start = 0
	}
	var hist []float64
	for _, v := range vol[start:] {
		if indicator.Defined(v) {
			hist = append(hist, v)
		}
	}
	mean, std := meanStd(hist)
	if std > 0 && curVol > mean+std {
		return regimeHighVol, slope, ema, adx, true
	}
	if adx > s.adxThreshold && slope != 0 {
		return regimeTrend, slope, ema, adx, true
	}
	return regimeRange, slope, ema, adx, true
}

func (s *regime) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	kind, slope, ema, adx, ok := s.classify(bars)
	if !ok {
		return insufficientHistory()
	}
	return s.decide(kind, slope, ema, adx, bars[len(bars)-1].Close), nil
}

func (s *regime) decide(kind string, slope, ema, adx, c float64) models.Signal {
	switch kind {
	case regimeHighVol:
		return signal(0.0, 0.6, "regime=HIGH_VOL, risk off")
	case regimeTrend:
		switch {
		case slope > 0 && c > ema:
			return signal(0.7, 0.6, fmt.Sprintf("regime=TREND up (ADX=%.0f)", adx))
		case slope < 0:
			return signal(0.0, 0.5, fmt.Sprintf("regime=TREND down (ADX=%.0f)", adx))
		default:
			return signal(0.3, 0.4, "regime=TREND, price below EMA")
		}
	default:
		return signal(0.3, 0.4, fmt.Sprintf("regime=RANGE (ADX=%.0f)", adx))
	}
}

// meanStd 样本均值和样本标准差 (ddof=1)
func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	if len(x) < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(x)-1))
}
