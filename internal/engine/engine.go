// Package engine 执行一次完整的评估周期：取价、取K线、逐个bot计算信号并模拟成交、保存快照。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"binance-signal-bots-go/internal/exchange"
	"binance-signal-bots-go/internal/models"
	"binance-signal-bots-go/internal/notifier"
	"binance-signal-bots-go/internal/simulator"
	"binance-signal-bots-go/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoPrices 所有交易对都没有拿到有效价格
	ErrNoPrices = errors.New("no valid prices")
	// ErrNoBars 所有交易对都没有拿到K线
	ErrNoBars = errors.New("no bars")
)

// ReasonNoPrice 有信号但本轮没有有效价格
const ReasonNoPrice = "no valid price"

// BarStore 保存K线并提供最近一根，用于价格异常检查
type BarStore interface {
	InsertBars(bars []models.PriceBar) (int, error)
	LatestBar(symbol string) (*models.PriceBar, error)
}

// Status bot在一次 tick 中的结果
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// BotResult 单个bot的执行结果
type BotResult struct {
	Status   Status
	Err      error
	Signals  map[string]models.Signal
	Results  []simulator.Result
	Snapshot *models.BalanceSnapshot
}

// TickSummary 一次 tick 的汇总
type TickSummary struct {
	TickID   string
	Started  time.Time
	Duration time.Duration
	Prices   map[string]float64
	Bots     map[string]*BotResult
	Order    []string // bot 评估顺序
	OK       int
	Failed   int
	Executed int
}

// Trades 返回本次 tick 中执行的模拟成交，按bot顺序
func (s *TickSummary) Trades() []simulator.Result {
	var out []simulator.Result
	for _, name := range s.Order {
		r := s.Bots[name]
		if r == nil {
			continue
		}
		for _, res := range r.Results {
			if res.Executed {
				out = append(out, res)
			}
		}
	}
	return out
}

// Deps 引擎依赖
type Deps struct {
	Market exchange.MarketDataSource
	Bars   BarStore
	States simulator.StateRepository
	Ledger simulator.Ledger
	Bots   []*strategy.Bot
	Alerts notifier.Sink // 可选，bot 出错时发送告警
	Logger *zap.Logger
	Now    func() time.Time
}

// Engine 串行评估所有bot，同一时间只允许一个 tick
type Engine struct {
	cfg      *models.Config
	deps     Deps
	settings simulator.Settings
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg *models.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		settings: simulator.SettingsFromConfig(cfg),
		logger:   logger,
		now:      now,
	}
}

// symbols 配置的交易对加上各bot用到的交易对，去重保序
func (e *Engine) symbols() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range e.cfg.Symbols {
		add(s)
	}
	for _, b := range e.deps.Bots {
		for _, s := range b.Symbols() {
			add(s)
		}
	}
	return out
}

// Tick 执行一次评估。行情完全缺失时返回错误；单个bot失败只记录在汇总中。
func (e *Engine) Tick(ctx context.Context) (*TickSummary, error) {
	summary := &TickSummary{
		TickID:  uuid.NewString(),
		Started: e.now().UTC(),
		Bots:    make(map[string]*BotResult),
	}
	logger := e.logger.With(zap.String("tick", summary.TickID))
	logger.Info("tick started", zap.Int("bots", len(e.deps.Bots)))

	symbols := e.symbols()
	prices := e.fetchPrices(ctx, logger, symbols)
	summary.Prices = prices
	if len(prices) == 0 {
		return summary, ErrNoPrices
	}

	data := e.fetchBars(ctx, logger, symbols)
	if len(data) == 0 {
		return summary, ErrNoBars
	}

	for _, bot := range e.deps.Bots {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		name := bot.Name()
		summary.Order = append(summary.Order, name)
		res := e.runBot(ctx, logger, bot, data, prices)
		summary.Bots[name] = res
		if res.Status == StatusOK {
			summary.OK++
		} else {
			summary.Failed++
			e.alert(ctx, logger, name, res.Err)
		}
		for _, r := range res.Results {
			if r.Executed {
				summary.Executed++
			}
		}
	}

	summary.Duration = e.now().Sub(summary.Started)
	logger.Info("tick finished",
		zap.Int("ok", summary.OK),
		zap.Int("failed", summary.Failed),
		zap.Int("executed", summary.Executed),
	)
	return summary, nil
}

// fetchPrices 获取最新价；无效报价或相对上一根K线收盘价跳变过大的价格被丢弃
func (e *Engine) fetchPrices(ctx context.Context, logger *zap.Logger, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		q, err := e.deps.Market.FetchCurrentPrice(ctx, symbol)
		if err != nil {
			logger.Warn("failed to fetch price", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if q == nil || !(q.Price > 0) {
			logger.Warn("invalid quote", zap.String("symbol", symbol))
			continue
		}
		if e.deps.Bars != nil {
			prev, err := e.deps.Bars.LatestBar(symbol)
			if err != nil {
				logger.Warn("failed to load previous bar", zap.String("symbol", symbol), zap.Error(err))
			} else if prev != nil {
				if err := exchange.ValidatePriceChange(q.Price, prev.Close, e.cfg.PriceAnomalyThreshold); err != nil {
					logger.Warn("price rejected", zap.String("symbol", symbol), zap.Error(err))
					continue
				}
			}
		}
		prices[symbol] = q.Price
		logger.Info("price", zap.String("symbol", symbol), zap.Float64("price", q.Price))
	}
	return prices
}

func (e *Engine) fetchBars(ctx context.Context, logger *zap.Logger, symbols []string) map[string][]models.PriceBar {
	data := make(map[string][]models.PriceBar, len(symbols))
	for _, symbol := range symbols {
		bars, err := e.deps.Market.FetchBars(ctx, symbol, e.cfg.Interval, e.cfg.BarLimit)
		if err != nil {
			logger.Error("failed to fetch bars", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if len(bars) == 0 {
			logger.Warn("no bars", zap.String("symbol", symbol))
			continue
		}
		data[symbol] = bars
		if e.deps.Bars != nil {
			if _, err := e.deps.Bars.InsertBars(bars); err != nil {
				logger.Warn("failed to store bars", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}
	return data
}

// runBot 计算信号并逐个交易对模拟成交，panic 也只影响当前bot
func (e *Engine) runBot(ctx context.Context, logger *zap.Logger, bot *strategy.Bot, data map[string][]models.PriceBar, prices map[string]float64) (res *BotResult) {
	res = &BotResult{Status: StatusOK}
	logger = logger.With(zap.String("bot", bot.Name()))
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusError
			res.Err = fmt.Errorf("panic: %v", r)
			logger.Error("bot panicked", zap.Any("panic", r))
		}
	}()

	sim, err := simulator.New(bot.Name(), e.settings, e.deps.States, e.deps.Ledger, logger, simulator.WithClock(e.now))
	if err != nil {
		res.Status = StatusError
		res.Err = err
		logger.Error("failed to load simulator", zap.Error(err))
		return res
	}
	e.markPrices(logger, sim, prices)

	res.Signals = bot.GetSignals(ctx, data)
	symbols := make([]string, 0, len(res.Signals))
	for s := range res.Signals {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		sig := res.Signals[symbol]
		price, ok := prices[symbol]
		if !ok {
			res.Results = append(res.Results, simulator.Result{
				Symbol:         symbol,
				Action:         models.Hold,
				TargetPosition: sig.TargetPosition,
				Balance:        sim.Balance(),
				Reason:         ReasonNoPrice,
			})
			logger.Warn("signal not executed", zap.String("symbol", symbol), zap.String("reason", ReasonNoPrice))
			continue
		}
		r := sim.ApplySignal(symbol, sig, price)
		res.Results = append(res.Results, r)
		if r.Executed {
			logger.Info("trade executed",
				zap.String("action", string(r.Action)),
				zap.String("symbol", symbol),
				zap.Float64("prev_pos", r.PrevPosition),
				zap.Float64("target_pos", r.TargetPosition),
			)
		} else {
			logger.Debug("signal not executed", zap.String("symbol", symbol), zap.String("reason", r.Reason))
		}
	}

	snap, err := sim.SaveSnapshot(prices)
	if err != nil {
		logger.Warn("failed to save snapshot", zap.Error(err))
	}
	res.Snapshot = snap
	return res
}

// markPrices 用本轮价格给模拟器标价；本轮没有价格的持仓退回到库里最近一根K线的收盘价
func (e *Engine) markPrices(logger *zap.Logger, sim *simulator.Simulator, prices map[string]float64) {
	sim.MarkPrices(prices)
	if e.deps.Bars == nil {
		return
	}
	fallback := make(map[string]float64)
	for _, symbol := range sim.Symbols() {
		if _, ok := prices[symbol]; ok {
			continue
		}
		bar, err := e.deps.Bars.LatestBar(symbol)
		if err != nil {
			logger.Warn("failed to load last known price", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if bar != nil {
			fallback[symbol] = bar.Close
		}
	}
	sim.MarkPrices(fallback)
}

func (e *Engine) alert(ctx context.Context, logger *zap.Logger, botName string, botErr error) {
	if e.deps.Alerts == nil || botErr == nil {
		return
	}
	if err := e.deps.Alerts.Send(ctx, notifier.ErrorAlert(botName, botErr.Error(), e.now())); err != nil {
		logger.Warn("failed to send alert", zap.String("bot", botName), zap.Error(err))
	}
}
