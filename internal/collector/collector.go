// Package collector 订阅币安K线推送，把收盘的K线写入价格库。
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"binance-signal-bots-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// BarSink 保存K线，重复的 (timestamp, symbol) 被忽略
type BarSink interface {
	InsertBars(bars []models.PriceBar) (int, error)
}

// Options 采集器配置
type Options struct {
	BaseURL        string // e.g. wss://stream.binance.com:9443
	Symbols        []string
	Interval       string
	PongWait       time.Duration
	ReconnectDelay time.Duration
}

// Collector 维持一个组合流连接，断线后自动重连
type Collector struct {
	opts   Options
	sink   BarSink
	dialer *websocket.Dialer
	logger *zap.Logger
}

func New(opts Options, sink BarSink, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval == "" {
		opts.Interval = "5m"
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Collector{opts: opts, sink: sink, dialer: websocket.DefaultDialer, logger: logger}
}

// StreamURL 组合流地址：/stream?streams=btcusdt@kline_5m/ethusdt@kline_5m
func (c *Collector) StreamURL() string {
	streams := make([]string, len(c.opts.Symbols))
	for i, s := range c.opts.Symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(s), c.opts.Interval)
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(c.opts.BaseURL, "/"), strings.Join(streams, "/"))
}

// Run 阻塞直到 ctx 结束
func (c *Collector) Run(ctx context.Context) error {
	if len(c.opts.Symbols) == 0 {
		return errors.New("collector: no symbols")
	}
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.logger.Info("kline stream stopped")
			return nil
		}
		c.logger.Warn("kline stream disconnected, reconnecting", zap.Error(err), zap.Duration("delay", c.opts.ReconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// session 处理一个连接直到出错或 ctx 结束
func (c *Collector) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}
	defer conn.Close()
	c.logger.Info("kline stream connected", zap.Strings("symbols", c.opts.Symbols))

	pongWait := c.opts.PongWait
	pingPeriod := (pongWait * 9) / 10
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				writeMu.Unlock()
				if err != nil {
					c.logger.Warn("发送Ping失败", zap.Error(err))
					return
				}
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				writeMu.Unlock()
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取消息失败: %w", err)
		}
		// 收到任何数据都说明连接正常
		conn.SetReadDeadline(time.Now().Add(pongWait))

		bar, closed, err := ParseKline(message)
		if err != nil {
			c.logger.Warn("解析K线失败", zap.Error(err))
			continue
		}
		if !closed {
			continue
		}
		if _, err := c.sink.InsertBars([]models.PriceBar{bar}); err != nil {
			c.logger.Error("保存K线失败", zap.String("symbol", bar.Symbol), zap.Error(err))
			continue
		}
		c.logger.Debug("kline stored", zap.String("symbol", bar.Symbol), zap.Time("ts", bar.Timestamp), zap.Float64("close", bar.Close))
	}
}

// ParseKline 解析组合流中的一条K线消息，closed 表示该K线已收盘
func ParseKline(message []byte) (bar models.PriceBar, closed bool, err error) {
	var ev binance.WsCombinedKlineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return bar, false, fmt.Errorf("invalid kline message: %w", err)
	}
	if ev.Data == nil {
		return bar, false, errors.New("kline message without data")
	}
	k := ev.Data.Kline
	symbol := k.Symbol
	if symbol == "" {
		symbol = ev.Data.Symbol
	}
	if symbol == "" || k.StartTime == 0 {
		return bar, false, errors.New("kline message without symbol or open time")
	}

	fields := [5]float64{}
	for i, s := range [5]string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return bar, false, fmt.Errorf("invalid kline field %q: %w", s, err)
		}
		fields[i] = v
	}
	bar = models.PriceBar{
		Timestamp: time.UnixMilli(k.StartTime).UTC(),
		Symbol:    symbol,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}
	return bar, k.IsFinal, nil
}
