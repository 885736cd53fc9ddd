package exchange

import (
	"binance-signal-bots-go/internal/models"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
)

// BinanceSource 通过币安公共接口获取现货行情和 U 本位合约数据，不需要 API Key
type BinanceSource struct {
	spot    *binance.Client
	futures *futures.Client
	logger  *zap.Logger
}

// NewBinanceSource 创建数据源；baseURL/futuresURL 为空时使用官方地址
func NewBinanceSource(baseURL, futuresURL string, logger *zap.Logger) *BinanceSource {
	spot := binance.NewClient("", "")
	fut := futures.NewClient("", "")
	httpClient := &http.Client{Timeout: 10 * time.Second}
	spot.HTTPClient = httpClient
	fut.HTTPClient = httpClient
	if baseURL != "" {
		spot.BaseURL = baseURL
	}
	if futuresURL != "" {
		fut.BaseURL = futuresURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceSource{spot: spot, futures: fut, logger: logger}
}

// classify 交易所返回的 API 错误不可重试，其余（网络、解析）按可重试处理
func classify(op, symbol string, err error) error {
	wrapped := fmt.Errorf("%s %s: %w", op, symbol, err)
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return Permanent(wrapped)
	}
	return Transient(wrapped)
}

func parseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return v, nil
}

// FetchBars 获取最近 limit 根K线，按时间升序
func (b *BinanceSource) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]models.PriceBar, error) {
	klines, err := b.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classify("fetch klines", symbol, err)
	}

	bars := make([]models.PriceBar, 0, len(klines))
	for _, k := range klines {
		bar, err := klineToBar(symbol, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, Permanent(fmt.Errorf("fetch klines %s: %w", symbol, err))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func klineToBar(symbol string, openTime int64, open, high, low, cls, volume string) (models.PriceBar, error) {
	bar := models.PriceBar{Timestamp: time.UnixMilli(openTime).UTC(), Symbol: symbol}
	var err error
	if bar.Open, err = parseFloat("open", open); err != nil {
		return bar, err
	}
	if bar.High, err = parseFloat("high", high); err != nil {
		return bar, err
	}
	if bar.Low, err = parseFloat("low", low); err != nil {
		return bar, err
	}
	if bar.Close, err = parseFloat("close", cls); err != nil {
		return bar, err
	}
	if bar.Volume, err = parseFloat("volume", volume); err != nil {
		return bar, err
	}
	return bar, nil
}

// FetchCurrentPrice 使用 24 小时行情的最新成交价；价格非正时返回 (nil, nil)
func (b *BinanceSource) FetchCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	stats, err := b.spot.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classify("fetch ticker", symbol, err)
	}
	if len(stats) == 0 {
		return nil, Permanent(fmt.Errorf("fetch ticker %s: empty response", symbol))
	}
	s := stats[0]
	price, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil || price <= 0 {
		b.logger.Warn("invalid ticker price", zap.String("symbol", symbol), zap.String("price", s.LastPrice))
		return nil, nil
	}
	volume, _ := strconv.ParseFloat(s.QuoteVolume, 64)
	ts := time.Now().UTC()
	if s.CloseTime > 0 {
		ts = time.UnixMilli(s.CloseTime).UTC()
	}
	return &models.Quote{Symbol: symbol, Price: price, Volume: volume, Timestamp: ts}, nil
}

// FetchFundingRate 最近一次资金费率
func (b *BinanceSource) FetchFundingRate(ctx context.Context, symbol string) (*models.FundingRate, error) {
	res, err := b.futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classify("fetch funding rate", symbol, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	rate, err := parseFloat("funding rate", res[0].LastFundingRate)
	if err != nil {
		return nil, Permanent(err)
	}
	return &models.FundingRate{Symbol: symbol, Rate: rate, Timestamp: time.UnixMilli(res[0].Time).UTC()}, nil
}

// FetchOpenInterest 当前持仓量（以标的数量计）
func (b *BinanceSource) FetchOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	res, err := b.futures.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classify("fetch open interest", symbol, err)
	}
	if res == nil {
		return nil, nil
	}
	amount, err := parseFloat("open interest", res.OpenInterest)
	if err != nil {
		return nil, Permanent(err)
	}
	return &models.OpenInterest{Symbol: symbol, Amount: amount, Timestamp: time.UnixMilli(res.Time).UTC()}, nil
}
