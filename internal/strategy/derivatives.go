package strategy

import (
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// derivatives 资金费率过热与持仓量变化
type derivatives struct {
	source  DerivativeSource
	store   DerivativeStore
	now     func() time.Time
	logger  *zap.Logger
	extreme float64
	oiThr   float64
}

func newDerivatives(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &derivatives{
		source:  deps.Derivatives,
		store:   deps.DerivStore,
		now:     deps.now,
		logger:  deps.logger().With(zap.String("bot", cfg.Name)),
		extreme: p.positive("funding_extreme_pct", 0.01),
		oiThr:   p.positive("oi_change_threshold", 0.10),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return newSingleBot(cfg, deps, s), nil
}

// oiChange 相对上一次记录的持仓量变化率，没有历史时为 0。必须在写入本次快照之前读取。
func (s *derivatives) oiChange(symbol string, current float64) float64 {
	if s.store == nil {
		return 0
	}
	prev, err := s.store.LatestDerivative(symbol)
	if err != nil {
		s.logger.Warn("failed to read previous derivative snapshot", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}
	if prev == nil || prev.OpenInterest <= 0 {
		return 0
	}
	return (current - prev.OpenInterest) / prev.OpenInterest
}

func (s *derivatives) ComputeSignal(ctx context.Context, _ []models.PriceBar, symbol string) (models.Signal, error) {
	if s.source == nil {
		return models.HoldSignal("derivatives source unavailable"), nil
	}
	fr, err := s.source.FetchFundingRate(ctx, symbol)
	if err != nil || fr == nil {
		s.logger.Warn("funding rate unavailable", zap.String("symbol", symbol), zap.Error(err))
		return models.HoldSignal("derivatives data unavailable"), nil
	}
	oi, err := s.source.FetchOpenInterest(ctx, symbol)
	if err != nil || oi == nil {
		s.logger.Warn("open interest unavailable", zap.String("symbol", symbol), zap.Error(err))
		return models.HoldSignal("derivatives data unavailable"), nil
	}

	change := s.oiChange(symbol, oi.Amount)
	if s.store != nil {
		snap := &models.DerivativeSnapshot{
			Timestamp:    s.now(),
			Symbol:       symbol,
			FundingRate:  fr.Rate,
			OpenInterest: oi.Amount,
		}
		if err := s.store.SaveDerivative(snap); err != nil {
			s.logger.Warn("failed to save derivative snapshot", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	rate := fr.Rate
	switch {
	case rate > s.extreme:
		return signal(0.0, 0.6, fmt.Sprintf("funding %.4f overheated long, close", rate)), nil
	case rate < -s.extreme:
		pos := 0.6
		if change > s.oiThr {
			pos = 0.8
		}
		return signal(pos, 0.6, fmt.Sprintf("funding %.4f crowded short, OI %+.1f%%, long", rate, change*100)), nil
	case change < -s.oiThr:
		return signal(0.0, 0.5, fmt.Sprintf("OI drop %+.1f%%, deleveraging", change*100)), nil
	case change > s.oiThr:
		return signal(0.5, 0.5, fmt.Sprintf("OI surge %+.1f%% with neutral funding", change*100)), nil
	default:
		return signal(0.2, 0.3, fmt.Sprintf("derivatives neutral (funding %.4f, OI %+.1f%%)", rate, change*100)), nil
	}
}
