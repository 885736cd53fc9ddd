package strategy

import (
	"binance-signal-bots-go/internal/indicator"
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
)

// volMomentum 成交量加权动量 + OBV 趋势 + 成交量 z-score
type volMomentum struct {
	momentum int
	volZ     int
	obvSMA   int
}

func newVolMomentum(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &volMomentum{
		momentum: p.period("momentum_period", 12),
		volZ:     p.period("volume_zscore_period", 48),
		obvSMA:   p.period("obv_sma_period", 12),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *volMomentum) ComputeSignal(_ context.Context, bars []models.PriceBar, _ string) (models.Signal, error) {
	mom := indicator.Last(indicator.VolumeWeightedMomentum(bars, s.momentum))
	obv := indicator.OBV(bars)
	curOBV := indicator.Last(obv)
	obvTrend := indicator.Last(indicator.SMA(obv, s.obvSMA))
	volZ := indicator.Last(indicator.ZScore(indicator.Volumes(bars), s.volZ))

	if !indicator.AllDefined(mom, curOBV, obvTrend, volZ) {
		return insufficientHistory()
	}

	return s.decide(mom, curOBV > obvTrend, volZ), nil
}

func (s *volMomentum) decide(mom float64, obvBullish bool, volZ float64) models.Signal {
	switch {
	case mom > 0 && obvBullish && volZ > 1.0:
		return signal(0.8, 0.7, fmt.Sprintf("strong volume momentum (vwm=%.0f, OBV up, vol z=%.1f)", mom, volZ))
	case mom > 0 && obvBullish:
		return signal(0.5, 0.5, fmt.Sprintf("bullish momentum (vwm=%.0f, OBV up)", mom))
	case mom < 0 && !obvBullish:
		return signal(0.0, 0.5, fmt.Sprintf("bearish momentum (vwm=%.0f, OBV down)", mom))
	case mom > 0 && !obvBullish:
		return signal(0.2, 0.3, "divergence: price up, OBV down")
	default:
		return signal(0.1, 0.3, "no clear direction")
	}
}
