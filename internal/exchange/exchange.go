// Package exchange 定义行情与衍生品数据源，并提供币安实现、重试包装和 CSV 回放实现。
package exchange

import (
	"binance-signal-bots-go/internal/models"
	"context"
	"errors"
)

// MarketDataSource 提供K线和最新价格。
// 价格无效（非正数）时 FetchCurrentPrice 返回 (nil, nil)。
type MarketDataSource interface {
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.PriceBar, error)
	FetchCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error)
}

// DerivativeSource 提供永续合约的资金费率和持仓量
type DerivativeSource interface {
	FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error)
	FetchOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error)
}

var (
	// ErrTransient 网络抖动、超时等可以重试的错误
	ErrTransient = errors.New("transient exchange error")
	// ErrPermanent 交易所明确拒绝的请求，重试没有意义
	ErrPermanent = errors.New("permanent exchange error")
)

type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) Unwrap() []error { return []error{e.kind, e.err} }

// Transient 把错误标记为可重试
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: ErrTransient, err: err}
}

// Permanent 把错误标记为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: ErrPermanent, err: err}
}

// IsTransient 未分类的错误按可重试处理，context 取消和超时除外
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
