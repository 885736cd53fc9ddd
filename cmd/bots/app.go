package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"binance-signal-bots-go/internal/engine"
	"binance-signal-bots-go/internal/exchange"
	"binance-signal-bots-go/internal/logger"
	"binance-signal-bots-go/internal/models"
	"binance-signal-bots-go/internal/notifier"
	"binance-signal-bots-go/internal/persistence"
	"binance-signal-bots-go/internal/reporter"
	"binance-signal-bots-go/internal/storage"
	"binance-signal-bots-go/internal/strategy"
)

// app 持有一次运行所需的存储和通知通道
type app struct {
	cfg     *models.Config
	repo    persistence.Repository
	store   *storage.Store
	sink    notifier.Sink
	closers []func() error
}

// openApp 打开状态库、账本和通知通道；inMemory 用于回放，不影响实盘数据
func openApp(ctx context.Context, cfg *models.Config, inMemory bool) (*app, error) {
	a := &app{cfg: cfg}

	var err error
	if inMemory {
		a.repo, err = persistence.NewInMemoryRepository()
	} else {
		a.repo, err = persistence.NewBadgerRepository(cfg.StateDBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("无法打开状态库: %w", err)
	}
	a.closers = append(a.closers, a.repo.Close)

	dsn := cfg.LedgerDBPath
	if inMemory {
		dsn = ":memory:"
	}
	a.store, err = storage.InitDB(dsn)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("无法打开账本: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.sink = newSink(ctx, cfg, a)
	return a, nil
}

// newSink 配置了 Redis 时同时写日志和发布到 Redis，连接失败时退回只写日志
func newSink(ctx context.Context, cfg *models.Config, a *app) notifier.Sink {
	logSink := notifier.NewLogSink(logger.Named("notifier"))
	redisCfg := cfg.Redis
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisCfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		redisCfg.Password = pw
	}
	if redisCfg.Addr == "" {
		return logSink
	}
	rs, err := notifier.NewRedisSink(ctx, redisCfg, logger.Named("notifier"))
	if err != nil {
		logger.S().Warnf("Redis 通知不可用，仅写日志: %v", err)
		return logSink
	}
	a.closers = append(a.closers, rs.Close)
	return notifier.Multi{logSink, rs}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.S().Warnf("关闭资源失败: %v", err)
		}
	}
}

// liveSource 币安数据源加上重试
func liveSource(cfg *models.Config) *exchange.RetryingSource {
	src := exchange.NewBinanceSource(os.Getenv("BINANCE_BASE_URL"), os.Getenv("BINANCE_FUTURES_URL"), logger.Named("exchange"))
	policy := exchange.RetryPolicy{
		Attempts:     cfg.RetryAttempts,
		InitialDelay: time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond,
	}
	return exchange.WithRetry(src, src, policy, logger.Named("retry"))
}

// buildEngine 按配置构造全部bot并组装引擎；deriv 为 nil 时衍生品策略返回 HOLD
func (a *app) buildEngine(market exchange.MarketDataSource, deriv strategy.DerivativeSource, now func() time.Time) (*engine.Engine, []*strategy.Bot, error) {
	bots, err := strategy.NewAll(a.cfg.Bots, strategy.Deps{
		MinBars:     a.cfg.MinBars,
		Models:      a.repo,
		Derivatives: deriv,
		DerivStore:  a.store,
		Now:         now,
		Logger:      logger.Named("strategy"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("无法构造策略: %w", err)
	}
	eng := engine.New(a.cfg, engine.Deps{
		Market: market,
		Bars:   a.store,
		States: a.repo,
		Ledger: a.store,
		Bots:   bots,
		Alerts: a.sink,
		Logger: logger.Named("engine"),
		Now:    now,
	})
	return eng, bots, nil
}

func botNames(bots []*strategy.Bot) []string {
	names := make([]string, len(bots))
	for i, b := range bots {
		names[i] = b.Name()
	}
	return names
}

// dailyReport 生成日报文本
func (a *app) dailyReport(names []string, now time.Time) (string, error) {
	r, err := reporter.BuildDailyReport(a.store, a.repo, names, a.cfg.InitialBalance, now)
	if err != nil {
		return "", err
	}
	return r.Render(a.cfg.FixedFXRate), nil
}

// hourlyDigest 最近一小时的成交摘要，没有成交时返回空字符串
func (a *app) hourlyDigest(now time.Time) (string, error) {
	since := now.Add(-time.Hour)
	trades, err := a.store.TradesSince(since)
	if err != nil {
		return "", err
	}
	return reporter.BuildHourlyDigest(trades, since), nil
}

func logSummary(s *engine.TickSummary) {
	logger.S().Infof("执行汇总 [%s]: Bot正常 %d/%d, 错误 %d, 成交 %d",
		s.TickID, s.OK, len(s.Order), s.Failed, s.Executed)
	for _, r := range s.Trades() {
		logger.S().Infof("  %s %s: pos %.2f -> %.2f qty=%.6f", r.Action, r.Symbol, r.PrevPosition, r.TargetPosition, r.Quantity)
	}
}
