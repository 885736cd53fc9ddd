package exchange

import (
	"binance-signal-bots-go/internal/models"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 指数退避：第 n 次失败后等待 InitialDelay × 2^n
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
}

// Retry 只重试可重试的错误，不可重试的错误立即返回
func Retry[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := policy.InitialDelay * time.Duration(1<<attempt)
		logger.Warn("request failed, retrying",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Int("max", attempts),
			zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// RetryingSource 为行情和衍生品数据源加上重试
type RetryingSource struct {
	market MarketDataSource
	deriv  DerivativeSource
	policy RetryPolicy
	logger *zap.Logger
}

// WithRetry 包装数据源；deriv 可以为 nil
func WithRetry(market MarketDataSource, deriv DerivativeSource, policy RetryPolicy, logger *zap.Logger) *RetryingSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingSource{market: market, deriv: deriv, policy: policy, logger: logger}
}

func (r *RetryingSource) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.PriceBar, error) {
	return Retry(ctx, r.policy, r.logger, "fetch bars "+symbol, func(ctx context.Context) ([]models.PriceBar, error) {
		return r.market.FetchBars(ctx, symbol, interval, limit)
	})
}

func (r *RetryingSource) FetchCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	return Retry(ctx, r.policy, r.logger, "fetch price "+symbol, func(ctx context.Context) (*models.Quote, error) {
		return r.market.FetchCurrentPrice(ctx, symbol)
	})
}

func (r *RetryingSource) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	if r.deriv == nil {
		return nil, nil
	}
	return Retry(ctx, r.policy, r.logger, "fetch funding "+symbol, func(ctx context.Context) (*models.FundingRate, error) {
		return r.deriv.FetchFundingRate(ctx, symbol)
	})
}

func (r *RetryingSource) FetchOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	if r.deriv == nil {
		return nil, nil
	}
	return Retry(ctx, r.policy, r.logger, "fetch open interest "+symbol, func(ctx context.Context) (*models.OpenInterest, error) {
		return r.deriv.FetchOpenInterest(ctx, symbol)
	})
}
