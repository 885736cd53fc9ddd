package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"binance-signal-bots-go/internal/collector"
	"binance-signal-bots-go/internal/config"
	"binance-signal-bots-go/internal/downloader"
	"binance-signal-bots-go/internal/exchange"
	"binance-signal-bots-go/internal/logger"
	"binance-signal-bots-go/internal/models"
	"binance-signal-bots-go/internal/scheduler"

	"github.com/joho/godotenv"
)

// extractSymbolFromPath 从数据文件路径中提取交易对名称
// 例如: "data/BTCUSDT-2025-03-15-2025-06-15.csv" -> "BTCUSDT"
func extractSymbolFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	return strings.SplitN(name, "-", 2)[0]
}

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file (.json or .yaml)")
	mode := flag.String("mode", "tick", "running mode: tick, run, report, download, replay or stream")
	dataPath := flag.String("data", "", "comma separated kline CSV files for replay")
	symbol := flag.String("symbol", "", "symbol to download (e.g., BTCUSDT)")
	startDate := flag.String("start", "", "start date for download (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date for download (YYYY-MM-DD)")
	flag.Parse()

	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "tick":
		err = runTick(ctx, cfg)
	case "run":
		err = runScheduled(ctx, cfg)
	case "report":
		err = runReport(ctx, cfg)
	case "download":
		_, err = download(ctx, cfg, *symbol, *startDate, *endDate)
	case "replay":
		err = runReplay(ctx, cfg, *dataPath, *symbol, *startDate, *endDate)
	case "stream":
		err = runStream(ctx, cfg)
	default:
		err = fmt.Errorf("未知的运行模式: %s", *mode)
	}
	if err != nil {
		logger.S().Fatal(err)
	}
}

// runTick 执行一次评估，适合由外部定时任务调用
func runTick(ctx context.Context, cfg *models.Config) error {
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	src := liveSource(cfg)
	eng, _, err := a.buildEngine(src, src, time.Now)
	if err != nil {
		return err
	}
	summary, err := eng.Tick(ctx)
	if err != nil {
		return fmt.Errorf("tick 失败: %w", err)
	}
	logSummary(summary)
	return nil
}

// runScheduled 常驻运行：定时评估、每小时成交摘要、每日报告
func runScheduled(ctx context.Context, cfg *models.Config) error {
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	src := liveSource(cfg)
	eng, bots, err := a.buildEngine(src, src, time.Now)
	if err != nil {
		return err
	}
	names := botNames(bots)

	s := scheduler.New(logger.Named("scheduler"))
	s.Handle(scheduler.TickJob, func(ctx context.Context, _ scheduler.Job) error {
		summary, err := eng.Tick(ctx)
		if err != nil {
			return err
		}
		logSummary(summary)
		return nil
	})
	s.Handle(scheduler.DigestJob, func(ctx context.Context, job scheduler.Job) error {
		text, err := a.hourlyDigest(job.Requested)
		if err != nil || text == "" {
			return err
		}
		return a.sink.Send(ctx, text)
	})
	s.Handle(scheduler.ReportJob, func(ctx context.Context, job scheduler.Job) error {
		text, err := a.dailyReport(names, job.Requested)
		if err != nil {
			return err
		}
		return a.sink.Send(ctx, text)
	})
	s.Every(scheduler.TickJob, time.Duration(cfg.TickIntervalSec)*time.Second)
	s.Every(scheduler.DigestJob, time.Hour)
	s.Every(scheduler.ReportJob, 24*time.Hour)

	s.Start(ctx)
	s.Dispatch(scheduler.Job{Type: scheduler.TickJob})
	logger.S().Infof("--- 常驻模式已启动，每 %d 秒评估一次 ---", cfg.TickIntervalSec)

	<-ctx.Done()
	s.Stop()
	logger.S().Info("已停止。")
	return nil
}

// runReport 生成并发送日报
func runReport(ctx context.Context, cfg *models.Config) error {
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var names []string
	for _, b := range cfg.Bots {
		if !b.Disabled {
			names = append(names, b.Name)
		}
	}
	text, err := a.dailyReport(names, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(text)
	return a.sink.Send(ctx, text)
}

// download 下载K线到 data/ 目录，返回文件路径
func download(ctx context.Context, cfg *models.Config, symbol, startDate, endDate string) (string, error) {
	if symbol == "" || startDate == "" || endDate == "" {
		return "", fmt.Errorf("download 模式需要 --symbol、--start 和 --end 参数")
	}
	startTime, err1 := time.Parse("2006-01-02", startDate)
	endTime, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil {
		return "", fmt.Errorf("日期格式错误，请使用 YYYY-MM-DD 格式。start: %v, end: %v", err1, err2)
	}

	fileName := fmt.Sprintf("data/%s-%s-%s.csv", symbol, startDate, endDate)
	d := downloader.NewKlineDownloader(os.Getenv("BINANCE_BASE_URL"))
	if err := d.DownloadKlines(ctx, symbol, cfg.Interval, fileName, startTime, endTime); err != nil {
		return "", fmt.Errorf("下载数据失败: %w", err)
	}
	return fileName, nil
}

// runReplay 用历史K线逐根执行 tick，状态和账本都在内存中
func runReplay(ctx context.Context, cfg *models.Config, dataPath, symbol, startDate, endDate string) error {
	var paths []string
	if symbol != "" {
		p, err := download(ctx, cfg, symbol, startDate, endDate)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}
	for _, p := range strings.Split(dataPath, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("replay 模式需要通过 --data 或 --symbol/start/end 参数指定数据源")
	}

	src := exchange.NewReplaySource()
	for _, p := range paths {
		sym := extractSymbolFromPath(p)
		if sym == "" {
			return fmt.Errorf("无法从数据文件路径 %s 中提取交易对", p)
		}
		if err := src.LoadCSV(sym, p); err != nil {
			return err
		}
		logger.S().Infof("已加载 %s: %s", sym, p)
	}

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var cursor time.Time
	now := func() time.Time { return cursor }
	eng, bots, err := a.buildEngine(src, nil, now)
	if err != nil {
		return err
	}

	timeline := src.Timeline()
	if len(timeline) < cfg.MinBars {
		return fmt.Errorf("历史数据不足: %d 根K线，至少需要 %d 根", len(timeline), cfg.MinBars)
	}
	logger.S().Infof("开始回放 %d 根K线...", len(timeline)-cfg.MinBars+1)

	trades := 0
	for _, ts := range timeline[cfg.MinBars-1:] {
		if ctx.Err() != nil {
			break
		}
		cursor = ts
		src.SetCursor(ts)
		summary, err := eng.Tick(ctx)
		if err != nil {
			logger.S().Warnf("[%s] tick 失败: %v", ts.Format(time.RFC3339), err)
			continue
		}
		trades += summary.Executed
	}
	logger.S().Infof("回放结束，共成交 %d 笔。", trades)

	text, err := a.dailyReport(botNames(bots), cursor)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// runStream 订阅K线推送并写入账本
func runStream(ctx context.Context, cfg *models.Config) error {
	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	c := collector.New(collector.Options{
		BaseURL:        cfg.StreamWSURL,
		Symbols:        cfg.Symbols,
		Interval:       cfg.Interval,
		PongWait:       time.Duration(cfg.WebSocketPongTimeoutSec) * time.Second,
		ReconnectDelay: time.Duration(cfg.WebSocketReconnectDelayS) * time.Second,
	}, a.store, logger.Named("collector"))
	return c.Run(ctx)
}
