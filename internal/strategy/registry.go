package strategy

import (
	"binance-signal-bots-go/internal/models"
	"binance-signal-bots-go/internal/predictor"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ModelStore 保存/读取已训练模型的二进制内容，未找到时返回 (nil, nil)
type ModelStore interface {
	LoadModel(key string) ([]byte, error)
	SaveModel(key string, blob []byte) error
}

// DerivativeSource 提供永续合约的资金费率和持仓量
type DerivativeSource interface {
	FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error)
	FetchOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error)
}

// DerivativeStore 记录衍生品快照，未找到时 LatestDerivative 返回 (nil, nil)
type DerivativeStore interface {
	SaveDerivative(snap *models.DerivativeSnapshot) error
	LatestDerivative(symbol string) (*models.DerivativeSnapshot, error)
}

// Deps 是策略可选的外部依赖，缺失时相应策略返回 HOLD
type Deps struct {
	MinBars      int
	Models       ModelStore
	NewPredictor func() predictor.Predictor
	Derivatives  DerivativeSource
	DerivStore   DerivativeStore
	Now          func() time.Time
	Logger       *zap.Logger
}

func (d Deps) minBars() int {
	if d.MinBars <= 0 {
		return 50
	}
	return d.MinBars
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now()
}

type factory func(cfg models.BotConfig, deps Deps) (*Bot, error)

var registry = map[string]factory{
	"donchian":     newDonchian,
	"ema_adx":      newEMAADX,
	"bb_zscore":    newBBZScore,
	"vwap":         newVWAP,
	"squeeze":      newSqueeze,
	"vol_momentum": newVolMomentum,
	"pair_trade":   newPairTrade,
	"regime":       newRegime,
	"ml_gate":      newMLGate,
	"derivatives":  newDerivatives,
}

// ErrUnknownKind 配置中的策略类型不存在
var ErrUnknownKind = errors.New("unknown strategy kind")

// Kinds 返回所有已注册的策略类型
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// New 根据配置的 Kind 构造 bot
func New(cfg models.BotConfig, deps Deps) (*Bot, error) {
	f, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (bot %s)", ErrUnknownKind, cfg.Kind, cfg.Name)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("bot %s has no symbols", cfg.Name)
	}
	return f(cfg, deps)
}

// NewAll 按配置顺序构造所有未禁用的 bot
func NewAll(cfgs []models.BotConfig, deps Deps) ([]*Bot, error) {
	bots := make([]*Bot, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Disabled {
			continue
		}
		b, err := New(cfg, deps)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, nil
}

// params 读取 bot 参数并收集校验错误
type params struct {
	cfg  models.BotConfig
	errs []error
}

func newParams(cfg models.BotConfig) *params {
	return &params{cfg: cfg}
}

// period 读取一个正整数周期参数
func (p *params) period(key string, def int) int {
	v := int(p.cfg.Param(key, float64(def)))
	if v <= 0 {
		p.errs = append(p.errs, fmt.Errorf("bot %s: parameter %s must be positive, got %d", p.cfg.Name, key, v))
		return def
	}
	return v
}

func (p *params) float(key string, def float64) float64 {
	return p.cfg.Param(key, def)
}

// positive 读取一个必须大于0的浮点参数
func (p *params) positive(key string, def float64) float64 {
	v := p.cfg.Param(key, def)
	if v <= 0 {
		p.errs = append(p.errs, fmt.Errorf("bot %s: parameter %s must be positive, got %v", p.cfg.Name, key, v))
		return def
	}
	return v
}

func (p *params) err() error {
	return errors.Join(p.errs...)
}
