package strategy

import (
	"binance-signal-bots-go/internal/indicator"
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
	"math"
)

// bbZScore 布林带 z-score 均值回归，ADX 过高时暂停
type bbZScore struct {
	bbPeriod   int
	bbStd      float64
	entry      float64
	rsiPeriod  int
	rsiConfirm float64
	adxPeriod  int
	adxPause   float64
}

func newBBZScore(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &bbZScore{
		bbPeriod:   p.period("bb_period", 20),
		bbStd:      p.positive("bb_std", 2.0),
		entry:      p.positive("zscore_entry", 2.0),
		rsiPeriod:  p.period("rsi_period", 14),
		rsiConfirm: p.float("rsi_confirm", 30),
		adxPeriod:  p.period("adx_period", 14),
		adxPause:   p.float("adx_pause_threshold", 30),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *bbZScore) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	closes := indicator.Closes(bars)
	bb := indicator.Bollinger(closes, s.bbPeriod, s.bbStd)
	z := indicator.Last(bb.ZScore)
	lower := indicator.Last(bb.Lower)
	rsi := indicator.Last(indicator.RSI(closes, s.rsiPeriod))
	adx := indicator.Last(indicator.ADX(bars, s.adxPeriod).ADX)

	if !indicator.AllDefined(z, lower, rsi, adx) {
		return insufficientHistory()
	}

	return s.decide(z, lower, rsi, adx), nil
}

// decide 超卖时按 |z| 加仓，z 达到 1.5 倍入场阈值时封顶
func (s *bbZScore) decide(z, lower, rsi, adx float64) models.Signal {
	if adx >= s.adxPause {
		return signal(0.0, 0.2, fmt.Sprintf("ADX=%.0f trending, mean reversion paused", adx))
	}

	switch {
	case z <= -s.entry && rsi <= s.rsiConfirm:
		strength := math.Min(1.0, math.Abs(z)/(s.entry*1.5))
		return withStop(signal(0.5+0.3*strength, 0.6, fmt.Sprintf("oversold z=%.2f RSI=%.0f", z, rsi)), lower*0.98)
	case z >= s.entry:
		return signal(0.0, 0.5, fmt.Sprintf("overbought z=%.2f, take profit", z))
	case z < 0 && rsi < 50:
		return signal(0.2, 0.3, fmt.Sprintf("mild discount z=%.2f", z))
	default:
		return signal(0.0, 0.2, "no signal")
	}
}

// vwapAnchor 相对 VWAP 的偏离：放量顺势，缩量回归
type vwapAnchor struct {
	period    int
	threshold float64
	surgeK    float64
}

func newVWAP(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &vwapAnchor{
		period:    p.period("vwap_period", 48),
		threshold: p.positive("deviation_threshold", 0.01),
		surgeK:    p.positive("volume_surge_k", 1.5),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *vwapAnchor) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	volumes := indicator.Volumes(bars)
	c := indicator.Last(indicator.Closes(bars))
	v := indicator.Last(indicator.VWAP(bars, s.period))
	vol := indicator.Last(volumes)
	volAvg := indicator.Last(indicator.SMA(volumes, s.period))

	if !indicator.AllDefined(c, v, vol, volAvg) || volAvg == 0 || v == 0 {
		return insufficientHistory()
	}

	deviation := (c - v) / v
	volRatio := vol / volAvg
	surge := volRatio >= s.surgeK

	switch {
	case deviation > s.threshold && surge:
		return withStop(signal(0.7, 0.6, fmt.Sprintf("above VWAP %.2f%% on %.1fx volume", deviation*100, volRatio)), v), nil
	case deviation > s.threshold:
		return signal(0.1, 0.4, "above VWAP without volume, take profit"), nil
	case deviation < -s.threshold && surge:
		return signal(0.0, 0.5, "below VWAP on volume surge, avoid"), nil
	case deviation < -s.threshold:
		return withStop(signal(0.5, 0.5, fmt.Sprintf("below VWAP %.2f%%, expect reversion", deviation*100)), c*0.97), nil
	default:
		return signal(0.2, 0.3, fmt.Sprintf("near VWAP (%.2f%%)", deviation*100)), nil
	}
}
