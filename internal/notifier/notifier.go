// Package notifier 把格式化好的文本报告发送到外部通道。
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"binance-signal-bots-go/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaxMessageLength 单条消息的最大字符数
const MaxMessageLength = 5000

// Sink 接收一段文本
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Truncate 按字符（非字节）截断到 MaxMessageLength
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxMessageLength])
}

// LogSink 只写日志，未配置其它通道时使用
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, text string) error {
	s.logger.Info("notification", zap.String("text", Truncate(text)))
	return nil
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink 把消息发布到 Redis Pub/Sub 频道
type RedisSink struct {
	client  publisher
	closer  func() error
	channel string
	logger  *zap.Logger
}

// NewRedisSink 连接 Redis 并用 PING 验证连接
func NewRedisSink(ctx context.Context, cfg models.RedisConfig, logger *zap.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("Redis notifier connected", zap.String("addr", cfg.Addr), zap.String("channel", cfg.Channel))
	return &RedisSink{client: rdb, closer: rdb.Close, channel: cfg.Channel, logger: logger}, nil
}

func (s *RedisSink) Send(ctx context.Context, text string) error {
	if err := s.client.Publish(ctx, s.channel, Truncate(text)).Err(); err != nil {
		s.logger.Error("Failed to publish notification", zap.String("channel", s.channel), zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Multi 依次发送到所有 Sink，单个失败不影响其它
type Multi []Sink

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrorAlert 生成bot出错的告警文本，错误信息截断到200字符
func ErrorAlert(botName, errText string, now time.Time) string {
	if r := []rune(errText); len(r) > 200 {
		errText = string(r[:200])
	}
	return fmt.Sprintf("⚠️ Bot error\nBot: %s\nError: %s\nTime: %s",
		botName, errText, now.UTC().Format("15:04:05 UTC"))
}
