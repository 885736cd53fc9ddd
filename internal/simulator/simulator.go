package simulator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"binance-signal-bots-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 未执行原因
const (
	ReasonCircuitBreaker      = "circuit breaker tripped"
	ReasonInsufficientBalance = "insufficient balance"
	ReasonNoPosition          = "no position"
)

// StateRepository 保存bot的余额与激活状态
type StateRepository interface {
	LoadBotState(botName string) (*models.BotState, error)
	SaveBotState(state *models.BotState) error
}

// Ledger 只追加的成交与快照账本
type Ledger interface {
	SaveTrade(t *models.TradeRecord) error
	LatestPositions(botName string) (map[string]float64, error)
	SaveBalanceSnapshot(b *models.BalanceSnapshot) error
	CountTrades(botName string, from, to time.Time) (int, error)
	FirstSnapshotSince(botName string, since time.Time) (*models.BalanceSnapshot, error)
}

// Settings 模拟撮合参数
type Settings struct {
	InitialBalance    float64
	CostRate          float64 // 手续费+滑点
	MinPositionChange float64 // 死区
	CircuitBreaker    float64 // 亏损比例阈值
}

// SettingsFromConfig 从全局配置中提取撮合参数
func SettingsFromConfig(cfg *models.Config) Settings {
	return Settings{
		InitialBalance:    cfg.InitialBalance,
		CostRate:          cfg.TotalCostRate(),
		MinPositionChange: cfg.PositionChangeThreshold,
		CircuitBreaker:    cfg.CircuitBreakerThreshold,
	}
}

// Result 一次 ApplySignal 的结果，未执行时 Reason 说明原因
type Result struct {
	Executed       bool
	Action         models.Action
	Symbol         string
	PrevPosition   float64
	TargetPosition float64
	NewPosition    float64
	Quantity       float64
	EffectivePrice float64
	ProfitLoss     float64
	Balance        float64
	Reason         string
	Trade          *models.TradeRecord
	Tripped        bool // 本次调用触发了熔断
}

// Option 配置 Simulator
type Option func(*Simulator)

// WithClock 替换时间源，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// Simulator 单个bot的虚拟账户。一个 tick 内只被该bot使用，不做并发保护。
type Simulator struct {
	botName  string
	settings Settings
	state    models.BotState
	balance  decimal.Decimal
	holdings map[string]decimal.Decimal
	prices   map[string]float64 // 最近已知价格
	repo     StateRepository
	ledger   Ledger
	ids      *idGenerator
	logger   *zap.Logger
	now      func() time.Time
}

// New 加载bot状态并从成交记录重建持仓。首次出现的bot以初始资金建档并立即保存。
func New(botName string, settings Settings, repo StateRepository, ledger Ledger, logger *zap.Logger, opts ...Option) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		botName:  botName,
		settings: settings,
		holdings: make(map[string]decimal.Decimal),
		prices:   make(map[string]float64),
		repo:     repo,
		ledger:   ledger,
		ids:      newIDGenerator(),
		logger:   logger.With(zap.String("bot", botName)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := repo.LoadBotState(botName)
	if err != nil {
		return nil, fmt.Errorf("加载bot状态失败 %s: %w", botName, err)
	}
	if state == nil {
		s.state = models.BotState{
			BotName:     botName,
			Balance:     settings.InitialBalance,
			IsActive:    true,
			LastUpdated: s.now().UTC(),
		}
		s.balance = decimal.NewFromFloat(settings.InitialBalance)
		s.persistState()
	} else {
		s.state = *state
		s.balance = decimal.NewFromFloat(state.Balance)
	}

	positions, err := ledger.LatestPositions(botName)
	if err != nil {
		return nil, fmt.Errorf("重建持仓失败 %s: %w", botName, err)
	}
	for symbol, qty := range positions {
		if qty > 0 {
			s.holdings[symbol] = decimal.NewFromFloat(qty)
		}
	}
	return s, nil
}

// BotName 返回所属bot
func (s *Simulator) BotName() string { return s.botName }

// IsActive 熔断后返回 false
func (s *Simulator) IsActive() bool { return s.state.IsActive }

// Balance 当前现金余额
func (s *Simulator) Balance() float64 { return s.balance.InexactFloat64() }

// Quantity 返回某交易对的持有数量
func (s *Simulator) Quantity(symbol string) float64 {
	return s.holdings[symbol].InexactFloat64()
}

// Symbols 返回持仓不为零的交易对，已排序
func (s *Simulator) Symbols() []string {
	out := make([]string, 0, len(s.holdings))
	for sym, q := range s.holdings {
		if q.IsPositive() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// MarkPrices 更新最近已知价格，非正或非有限的价格被忽略。
// 每个 tick 重建的模拟器需要先用本轮行情标价，否则其他持仓会按 0 估值。
func (s *Simulator) MarkPrices(prices map[string]float64) {
	for sym, p := range prices {
		if p > 0 && !math.IsInf(p, 0) {
			s.prices[sym] = p
		}
	}
}

// positionValue 持仓市值，price 未知的交易对按 0 计
func (s *Simulator) positionValue() decimal.Decimal {
	total := decimal.Zero
	for sym, q := range s.holdings {
		p, ok := s.prices[sym]
		if !ok || !q.IsPositive() {
			continue
		}
		total = total.Add(q.Mul(decimal.NewFromFloat(p)))
	}
	return total
}

func (s *Simulator) totalAsset() decimal.Decimal {
	return s.balance.Add(s.positionValue())
}

func (s *Simulator) fraction(symbol string, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	p := decimal.NewFromFloat(s.prices[symbol])
	return s.holdings[symbol].Mul(p).Div(total)
}

// ApplySignal 按目标仓位调整 symbol 的持仓。
// 余额不足、无持仓、死区内均返回未执行结果而非错误；账本写入失败只记录日志，以内存状态为准。
func (s *Simulator) ApplySignal(symbol string, sig models.Signal, price float64) Result {
	res := Result{Symbol: symbol, Action: models.Hold, TargetPosition: sig.TargetPosition}
	if !s.state.IsActive {
		res.Reason = ReasonCircuitBreaker
		res.Balance = s.Balance()
		return res
	}
	if !(price > 0) || math.IsInf(price, 0) {
		res.Reason = fmt.Sprintf("invalid price %v", price)
		res.Balance = s.Balance()
		return res
	}
	s.prices[symbol] = price

	total := s.totalAsset()
	current := s.fraction(symbol, total)
	target := decimal.NewFromFloat(sig.TargetPosition)
	delta := target.Sub(current)
	res.PrevPosition = current.InexactFloat64()
	res.NewPosition = res.PrevPosition

	switch {
	case delta.Abs().LessThan(decimal.NewFromFloat(s.settings.MinPositionChange)):
		res.Reason = fmt.Sprintf("position change below threshold (delta=%.3f)", delta.InexactFloat64())
	case delta.IsPositive():
		s.increase(&res, sig, price, delta, total)
	default:
		s.decrease(&res, sig, price, delta.Abs(), current)
	}

	res.Balance = s.Balance()
	if s.checkCircuitBreaker() {
		res.Tripped = true
	}
	return res
}

func (s *Simulator) cost() decimal.Decimal {
	return decimal.NewFromFloat(s.settings.CostRate)
}

func (s *Simulator) increase(res *Result, sig models.Signal, price float64, delta, total decimal.Decimal) {
	f, ok := buyFill(s.balance, total, delta, decimal.NewFromFloat(price), s.cost())
	if !ok {
		res.Reason = ReasonInsufficientBalance
		return
	}
	s.balance = s.balance.Sub(f.cash)
	s.holdings[res.Symbol] = s.holdings[res.Symbol].Add(f.quantity)
	s.record(res, models.Buy, sig, price, f)
}

func (s *Simulator) decrease(res *Result, sig models.Signal, price float64, absDelta, current decimal.Decimal) {
	held := s.holdings[res.Symbol]
	f, ok := sellFill(held, current, absDelta, decimal.NewFromFloat(price), s.cost())
	if !ok {
		res.Reason = fmt.Sprintf("%s: %s", ReasonNoPosition, res.Symbol)
		return
	}
	s.balance = s.balance.Add(f.cash)
	s.holdings[res.Symbol] = held.Sub(f.quantity)
	s.record(res, models.Sell, sig, price, f)
}

// record 更新结果、写入成交记录并保存bot状态
func (s *Simulator) record(res *Result, action models.Action, sig models.Signal, price float64, f fill) {
	now := s.now().UTC()
	held := s.holdings[res.Symbol]

	res.Executed = true
	res.Action = action
	res.Quantity = f.quantity.InexactFloat64()
	res.EffectivePrice = f.effectivePrice.InexactFloat64()
	res.ProfitLoss = f.profitLoss.InexactFloat64()
	res.NewPosition = s.fraction(res.Symbol, s.totalAsset()).InexactFloat64()
	res.Reason = sig.Reason

	trade := &models.TradeRecord{
		TradeID:        s.ids.next(now),
		Timestamp:      now,
		BotName:        s.botName,
		Symbol:         res.Symbol,
		Action:         action,
		TargetPosition: sig.TargetPosition,
		PrevPosition:   res.PrevPosition,
		Price:          price,
		EffectivePrice: res.EffectivePrice,
		Quantity:       res.Quantity,
		BalanceAfter:   s.Balance(),
		PositionAfter:  held.InexactFloat64(),
		ProfitLoss:     res.ProfitLoss,
		Confidence:     sig.Confidence,
		Note:           sig.Reason,
	}
	if err := s.ledger.SaveTrade(trade); err != nil {
		s.logger.Error("保存成交记录失败", zap.String("symbol", res.Symbol), zap.Error(err))
	}
	res.Trade = trade
	s.persistState()

	s.logger.Info("模拟成交",
		zap.String("action", string(action)),
		zap.String("symbol", res.Symbol),
		zap.Float64("prev_pos", res.PrevPosition),
		zap.Float64("target_pos", sig.TargetPosition),
		zap.Float64("qty", res.Quantity),
		zap.Float64("balance", trade.BalanceAfter),
	)
}

// checkCircuitBreaker 亏损比例达到阈值时停用bot并保存，返回是否在本次触发
func (s *Simulator) checkCircuitBreaker() bool {
	initial := decimal.NewFromFloat(s.settings.InitialBalance)
	if !s.state.IsActive || !initial.IsPositive() {
		return false
	}
	total := s.totalAsset()
	lossRate := initial.Sub(total).Div(initial)
	if lossRate.LessThan(decimal.NewFromFloat(s.settings.CircuitBreaker)) {
		return false
	}
	s.state.IsActive = false
	s.persistState()
	s.logger.Warn("熔断触发，bot已停用",
		zap.Float64("total_asset", total.InexactFloat64()),
		zap.Float64("loss_rate", lossRate.InexactFloat64()),
	)
	return true
}

func (s *Simulator) persistState() {
	s.state.Balance = s.balance.InexactFloat64()
	s.state.LastUpdated = s.now().UTC()
	st := s.state
	if err := s.repo.SaveBotState(&st); err != nil {
		s.logger.Error("保存bot状态失败", zap.Error(err))
	}
}

// SaveSnapshot 以给定价格刷新最近已知价格并写入一条资产快照，不改变余额与持仓。
func (s *Simulator) SaveSnapshot(prices map[string]float64) (*models.BalanceSnapshot, error) {
	s.MarkPrices(prices)
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	posValue := s.positionValue()
	total := s.balance.Add(posValue)
	snap := &models.BalanceSnapshot{
		Timestamp:     now,
		BotName:       s.botName,
		Balance:       s.Balance(),
		PositionValue: posValue.InexactFloat64(),
		TotalAsset:    total.InexactFloat64(),
		TotalPnL:      total.Sub(decimal.NewFromFloat(s.settings.InitialBalance)).InexactFloat64(),
		IsActive:      s.state.IsActive,
	}

	count, err := s.ledger.CountTrades(s.botName, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		s.logger.Warn("统计当日成交失败", zap.Error(err))
	}
	snap.TradeCount = count

	first, err := s.ledger.FirstSnapshotSince(s.botName, dayStart)
	if err != nil {
		s.logger.Warn("读取当日首个快照失败", zap.Error(err))
	}
	if first != nil {
		snap.DailyPnL = total.Sub(decimal.NewFromFloat(first.TotalAsset)).InexactFloat64()
	}

	if err := s.ledger.SaveBalanceSnapshot(snap); err != nil {
		return snap, fmt.Errorf("保存资产快照失败: %w", err)
	}
	return snap, nil
}
