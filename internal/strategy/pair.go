package strategy

import (
	"binance-signal-bots-go/internal/indicator"
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
	"math"
)

// pairTrade 两个交易对对数价差的 z-score。只做多，所以做多相对便宜的一腿，另一腿清仓。
type pairTrade struct {
	legA, legB string
	period     int
	entry      float64
	exit       float64
	stop       float64
}

func newPairTrade(cfg models.BotConfig, deps Deps) (*Bot, error) {
	if len(cfg.Symbols) != 2 {
		return nil, fmt.Errorf("bot %s: pair trade needs exactly 2 symbols, got %d", cfg.Name, len(cfg.Symbols))
	}
	p := newParams(cfg)
	s := &pairTrade{
		legA:   cfg.Symbols[0],
		legB:   cfg.Symbols[1],
		period: p.period("spread_period", 48),
		entry:  p.positive("zscore_entry", 2.0),
		exit:   p.positive("zscore_exit", 0.5),
		stop:   p.positive("zscore_stop", 3.5),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newJointBot(cfg, deps, s), nil
}

// Spread 对齐两条收盘价序列的尾部后返回 log(a)-log(b)
func Spread(a, b []models.PriceBar) ([]float64, error) {
	n := min(len(a), len(b))
	a, b = a[len(a)-n:], b[len(b)-n:]
	spread := make([]float64, n)
	for i := 0; i < n; i++ {
		if a[i].Close <= 0 || b[i].Close <= 0 {
			return nil, fmt.Errorf("non-positive close at %s", a[i].Timestamp.Format("2006-01-02 15:04"))
		}
		spread[i] = math.Log(a[i].Close) - math.Log(b[i].Close)
	}
	return spread, nil
}

func (s *pairTrade) ComputeSignals(_ context.Context, data map[string][]models.PriceBar) (map[string]models.Signal, error) {
	spread, err := Spread(data[s.legA], data[s.legB])
	if err != nil {
		return nil, err
	}
	mean := indicator.Last(indicator.SMA(spread, s.period))
	std := indicator.Last(indicator.RollingStd(spread, s.period))
	cur := indicator.Last(spread)
	if !indicator.AllDefined(mean, std, cur) || std == 0 {
		return s.both(models.HoldSignal("spread history too short")), nil
	}
	return s.decide((cur - mean) / std), nil
}

// decide 根据价差 z-score 给出两腿信号；z 恰好等于入场阈值时不入场
func (s *pairTrade) decide(z float64) map[string]models.Signal {
	switch {
	case z > s.entry:
		return map[string]models.Signal{
			s.legA: signal(0.0, 0.6, fmt.Sprintf("pair: %s rich (z=%.2f), sell", s.legA, z)),
			s.legB: signal(0.7, 0.6, fmt.Sprintf("pair: %s cheap (z=%.2f), buy", s.legB, z)),
		}
	case z < -s.entry:
		return map[string]models.Signal{
			s.legA: signal(0.7, 0.6, fmt.Sprintf("pair: %s cheap (z=%.2f), buy", s.legA, z)),
			s.legB: signal(0.0, 0.6, fmt.Sprintf("pair: %s rich (z=%.2f), sell", s.legB, z)),
		}
	case math.Abs(z) < s.exit:
		return s.both(signal(0.0, 0.3, fmt.Sprintf("pair: z=%.2f neutral", z)))
	case math.Abs(z) > s.stop:
		return s.both(signal(0.0, 0.5, fmt.Sprintf("pair: z=%.2f stop", z)))
	default:
		return s.both(models.HoldSignal(fmt.Sprintf("pair: z=%.2f hold", z)))
	}
}

func (s *pairTrade) both(sig models.Signal) map[string]models.Signal {
	return map[string]models.Signal{s.legA: sig, s.legB: sig}
}
