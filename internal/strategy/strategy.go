// Package strategy 定义策略bot的统一接口与默认的多交易对分发逻辑。
package strategy

import (
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	ReasonNoData              = "no data"
	ReasonInsufficientData    = "insufficient data"
	ReasonInsufficientHistory = "insufficient history"
)

// Strategy 对单个交易对计算信号
type Strategy interface {
	ComputeSignal(ctx context.Context, bars []models.PriceBar, symbol string) (models.Signal, error)
}

// JointStrategy 需要同时考虑多个交易对的策略（如配对交易）
type JointStrategy interface {
	ComputeSignals(ctx context.Context, data map[string][]models.PriceBar) (map[string]models.Signal, error)
}

// Bot 包装一个策略，统一实现数据不足返回 HOLD、异常隔离、目标仓位截断
type Bot struct {
	name        string
	description string
	symbols     []string
	minBars     int
	single      Strategy
	joint       JointStrategy
	logger      *zap.Logger
}

func newSingleBot(cfg models.BotConfig, deps Deps, s Strategy) *Bot {
	return &Bot{
		name:        cfg.Name,
		description: cfg.Description,
		symbols:     cfg.Symbols,
		minBars:     deps.minBars(),
		single:      s,
		logger:      deps.logger().With(zap.String("bot", cfg.Name)),
	}
}

func newJointBot(cfg models.BotConfig, deps Deps, j JointStrategy) *Bot {
	b := newSingleBot(cfg, deps, nil)
	b.joint = j
	return b
}

// Name 返回bot名称
func (b *Bot) Name() string { return b.name }

// Description 返回bot描述
func (b *Bot) Description() string { return b.description }

// Symbols 返回bot关注的交易对
func (b *Bot) Symbols() []string { return b.symbols }

// GetSignals 为每个配置的交易对返回一个信号，永不返回错误。
func (b *Bot) GetSignals(ctx context.Context, data map[string][]models.PriceBar) map[string]models.Signal {
	var signals map[string]models.Signal
	if b.joint != nil {
		signals = b.jointSignals(ctx, data)
	} else {
		signals = make(map[string]models.Signal, len(b.symbols))
		for _, symbol := range b.symbols {
			signals[symbol] = b.symbolSignal(ctx, data, symbol)
		}
	}

	for symbol, sig := range signals {
		sig.TargetPosition = Clamp(sig.TargetPosition)
		signals[symbol] = sig
	}
	return signals
}

func (b *Bot) symbolSignal(ctx context.Context, data map[string][]models.PriceBar, symbol string) (sig models.Signal) {
	bars, ok := data[symbol]
	if !ok {
		return models.HoldSignal(ReasonNoData)
	}
	if len(bars) < b.minBars {
		return models.HoldSignal(ReasonInsufficientData)
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("signal computation panicked", zap.String("symbol", symbol), zap.Any("panic", r))
			sig = models.HoldSignal(fmt.Sprintf("error: %v", r))
		}
	}()

	sig, err := b.single.ComputeSignal(ctx, bars, symbol)
	if err != nil {
		b.logger.Error("signal computation failed", zap.String("symbol", symbol), zap.Error(err))
		return models.HoldSignal(fmt.Sprintf("error: %v", err))
	}
	return sig
}

func (b *Bot) jointSignals(ctx context.Context, data map[string][]models.PriceBar) (signals map[string]models.Signal) {
	holdAll := func(reason string) map[string]models.Signal {
		out := make(map[string]models.Signal, len(b.symbols))
		for _, s := range b.symbols {
			out[s] = models.HoldSignal(reason)
		}
		return out
	}

	for _, symbol := range b.symbols {
		bars, ok := data[symbol]
		if !ok {
			return holdAll(ReasonNoData)
		}
		if len(bars) < b.minBars {
			return holdAll(ReasonInsufficientData)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("joint signal computation panicked", zap.Any("panic", r))
			signals = holdAll(fmt.Sprintf("error: %v", r))
		}
	}()

	computed, err := b.joint.ComputeSignals(ctx, data)
	if err != nil {
		b.logger.Error("joint signal computation failed", zap.Error(err))
		return holdAll(fmt.Sprintf("error: %v", err))
	}

	signals = holdAll(ReasonNoData)
	for _, symbol := range b.symbols {
		if sig, ok := computed[symbol]; ok {
			signals[symbol] = sig
		}
	}
	return signals
}

// Clamp 把目标仓位限制在 [0,1]，NaN 视为 0
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func signal(target, confidence float64, reason string) models.Signal {
	return models.Signal{TargetPosition: target, Confidence: confidence, Reason: reason}
}

func withStop(s models.Signal, stop float64) models.Signal {
	s.StopLoss = &stop
	return s
}

func insufficientHistory() (models.Signal, error) {
	return models.HoldSignal(ReasonInsufficientHistory), nil
}
