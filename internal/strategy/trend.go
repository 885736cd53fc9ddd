package strategy

import (
	"binance-signal-bots-go/internal/indicator"
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
)

// donchian 通道突破趋势跟踪。通道取当前K线之前的 channel_period 根，
// 否则收盘价永远不可能高于包含自身最高价的通道上沿。
type donchian struct {
	channel   int
	atrPeriod int
	atrK      float64
}

func newDonchian(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &donchian{
		channel:   p.period("channel_period", 48),
		atrPeriod: p.period("atr_period", 14),
		atrK:      p.positive("atr_trail_k", 2.0),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *donchian) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	closes := indicator.Closes(bars)
	ch := indicator.Donchian(bars, s.channel)
	atr := indicator.ATR(bars, s.atrPeriod)
	ema := indicator.EMA(closes, s.channel)

	c, prevC := indicator.At(closes, 0), indicator.At(closes, 1)
	upper, prevUpper := indicator.At(ch.Upper, 1), indicator.At(ch.Upper, 2)
	lower, prevLower := indicator.At(ch.Lower, 1), indicator.At(ch.Lower, 2)
	mid := indicator.At(ch.Mid, 1)
	curATR := indicator.Last(atr)
	curEMA := indicator.Last(ema)

	if !indicator.AllDefined(c, prevC, upper, prevUpper, lower, prevLower, mid, curATR, curEMA) {
		return insufficientHistory()
	}
	return s.decide(channelState{
		close: c, prevClose: prevC,
		upper: upper, prevUpper: prevUpper,
		lower: lower, prevLower: prevLower,
		mid: mid, atr: curATR, ema: curEMA,
	}), nil
}

// channelState 最新K线与其之前的通道
type channelState struct {
	close, prevClose float64
	upper, prevUpper float64
	lower, prevLower float64
	mid, atr, ema    float64
}

// decide 收盘价必须严格突破上一根K线的通道才算突破
func (s *donchian) decide(st channelState) models.Signal {
	switch {
	case st.close > st.upper && st.prevClose <= st.prevUpper:
		return withStop(signal(0.8, 0.7, fmt.Sprintf("donchian breakout up (%.2f > %.2f)", st.close, st.upper)), st.close-st.atr*s.atrK)
	case st.close < st.lower && st.prevClose >= st.prevLower:
		return signal(0.0, 0.7, fmt.Sprintf("donchian breakout down (%.2f < %.2f)", st.close, st.lower))
	case st.close > st.ema:
		return withStop(signal(0.4, 0.4, fmt.Sprintf("above EMA%d, trend intact (%.2f > %.2f)", s.channel, st.close, st.ema)), st.mid-st.atr*s.atrK)
	default:
		return signal(0.1, 0.3, "below EMA, keep small position")
	}
}

// emaADX EMA 金叉死叉 + ADX 趋势强度过滤
type emaADX struct {
	short, long int
	adxPeriod   int
	threshold   float64
}

func newEMAADX(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &emaADX{
		short:     p.period("ema_short", 12),
		long:      p.period("ema_long", 48),
		adxPeriod: p.period("adx_period", 14),
		threshold: p.float("adx_threshold", 25),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *emaADX) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	closes := indicator.Closes(bars)
	emaS := indicator.Last(indicator.EMA(closes, s.short))
	emaL := indicator.Last(indicator.EMA(closes, s.long))
	adx := indicator.ADX(bars, s.adxPeriod)
	curADX := indicator.Last(adx.ADX)
	plusDI, minusDI := indicator.Last(adx.PlusDI), indicator.Last(adx.MinusDI)

	if !indicator.AllDefined(emaS, emaL, curADX, plusDI, minusDI) {
		return insufficientHistory()
	}

	trendUp := emaS > emaL
	strong := curADX >= s.threshold

	switch {
	case trendUp && strong && plusDI > minusDI:
		return signal(0.8, 0.7, fmt.Sprintf("EMA golden cross, ADX=%.0f strong trend", curADX)), nil
	case trendUp && !strong:
		return signal(0.3, 0.4, fmt.Sprintf("EMA up but ADX=%.0f weak", curADX)), nil
	case !trendUp && strong && minusDI > plusDI:
		return signal(0.0, 0.6, fmt.Sprintf("EMA dead cross, ADX=%.0f downtrend", curADX)), nil
	default:
		return signal(0.1, 0.3, "no clear direction"), nil
	}
}
