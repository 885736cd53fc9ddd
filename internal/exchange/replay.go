package exchange

import (
	"binance-signal-bots-go/internal/models"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ReplaySource 从下载的K线 CSV 回放行情。游标之后的数据对调用方不可见。
type ReplaySource struct {
	mu     sync.RWMutex
	bars   map[string][]models.PriceBar
	cursor time.Time
}

// NewReplaySource 创建空的回放源
func NewReplaySource() *ReplaySource {
	return &ReplaySource{bars: make(map[string][]models.PriceBar)}
}

// LoadCSV 读取下载器生成的 CSV（open_time, open, high, low, close, volume, ...）
func (r *ReplaySource) LoadCSV(symbol, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("无法打开数据文件 %s: %w", path, err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return fmt.Errorf("无法读取CSV数据 %s: %w", path, err)
	}
	if len(records) > 0 {
		if _, err := strconv.ParseInt(records[0][0], 10, 64); err != nil {
			records = records[1:] // 表头
		}
	}

	bars := make([]models.PriceBar, 0, len(records))
	for i, rec := range records {
		if len(rec) < 6 {
			return fmt.Errorf("%s line %d: expected at least 6 columns, got %d", path, i+2, len(rec))
		}
		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%s line %d: invalid open_time: %w", path, i+2, err)
		}
		bar, err := klineToBar(symbol, ms, rec[1], rec[2], rec[3], rec[4], rec[5])
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		bars = append(bars, bar)
	}
	r.Add(symbol, bars)
	return nil
}

// Add 追加一个交易对的K线，并按时间排序
func (r *ReplaySource) Add(symbol string, bars []models.PriceBar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append(r.bars[symbol], bars...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	r.bars[symbol] = all
}

// SetCursor 设置回放时间点，零值表示不限制
func (r *ReplaySource) SetCursor(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = t
}

// Timeline 返回所有交易对K线时间的并集，按时间升序
func (r *ReplaySource) Timeline() []time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int64]bool)
	var out []time.Time
	for _, bars := range r.bars {
		for _, b := range bars {
			if k := b.Timestamp.UnixMilli(); !seen[k] {
				seen[k] = true
				out = append(out, b.Timestamp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (r *ReplaySource) visible(symbol string) []models.PriceBar {
	bars := r.bars[symbol]
	if r.cursor.IsZero() {
		return bars
	}
	n := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(r.cursor) })
	return bars[:n]
}

// FetchBars interval 被忽略，返回游标之前的最近 limit 根
func (r *ReplaySource) FetchBars(_ context.Context, symbol, _ string, limit int) ([]models.PriceBar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bars := r.visible(symbol)
	if len(bars) == 0 {
		return nil, Permanent(fmt.Errorf("no replay data for %s", symbol))
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

// FetchCurrentPrice 以游标处最后一根K线的收盘价作为现价
func (r *ReplaySource) FetchCurrentPrice(_ context.Context, symbol string) (*models.Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bars := r.visible(symbol)
	if len(bars) == 0 {
		return nil, Permanent(fmt.Errorf("no replay data for %s", symbol))
	}
	last := bars[len(bars)-1]
	if last.Close <= 0 {
		return nil, nil
	}
	return &models.Quote{Symbol: symbol, Price: last.Close, Volume: last.Volume, Timestamp: last.Timestamp}, nil
}
