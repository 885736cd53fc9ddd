package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"binance-signal-bots-go/internal/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassification(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.True(t, IsTransient(Transient(errors.New("timeout"))))
	assert.False(t, IsTransient(Permanent(errors.New("bad symbol"))))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))

	apiErr := classify("fetch klines", "BTCUSDT", &common.APIError{Code: -1121, Message: "Invalid symbol."})
	assert.ErrorIs(t, apiErr, ErrPermanent)
	var target *common.APIError
	assert.ErrorAs(t, apiErr, &target)

	netErr := classify("fetch klines", "BTCUSDT", errors.New("dial tcp: i/o timeout"))
	assert.ErrorIs(t, netErr, ErrTransient)
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond}, zap.NewNop(), "op",
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, Transient(errors.New("flaky"))
			}
			return 42, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{Attempts: 5, InitialDelay: time.Millisecond}, zap.NewNop(), "op",
		func(context.Context) (int, error) {
			calls++
			return 0, Permanent(errors.New("rejected"))
		})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond}, zap.NewNop(), "op",
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("down")
		})
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, RetryPolicy{Attempts: 3, InitialDelay: time.Hour}, zap.NewNop(), "op",
		func(context.Context) (int, error) { return 0, errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidatePriceChange(t *testing.T) {
	assert.NoError(t, ValidatePriceChange(100, 0, 0.5))
	assert.NoError(t, ValidatePriceChange(140, 100, 0.5))
	assert.NoError(t, ValidatePriceChange(150, 100, 0.5))
	assert.ErrorIs(t, ValidatePriceChange(151, 100, 0.5), ErrPriceAnomaly)
	assert.ErrorIs(t, ValidatePriceChange(40, 100, 0.5), ErrPriceAnomaly)
}

func writeCSV(t *testing.T, rows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "BTCUSDT.csv")
	content := "open_time,open,high,low,close,volume,close_time\n"
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		ts := start.Add(time.Duration(i) * 5 * time.Minute).UnixMilli()
		c := 100 + float64(i)
		content += fmt.Sprintf("%d,%g,%g,%g,%g,%g,%d\n", ts, c, c+1, c-1, c, 2.5, ts+299999)
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplaySourceRespectsCursor(t *testing.T) {
	r := NewReplaySource()
	require.NoError(t, r.LoadCSV("BTCUSDT", writeCSV(t, 10)))
	ctx := context.Background()

	timeline := r.Timeline()
	require.Len(t, timeline, 10)

	r.SetCursor(timeline[4])
	bars, err := r.FetchBars(ctx, "BTCUSDT", "5m", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 104.0, bars[2].Close)

	q, err := r.FetchCurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 104.0, q.Price)

	_, err = r.FetchBars(ctx, "ETHUSDT", "5m", 3)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestReplaySourceRejectsBadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2,3\n"), 0o644))
	assert.Error(t, NewReplaySource().LoadCSV("BTCUSDT", path))
	assert.Error(t, NewReplaySource().LoadCSV("BTCUSDT", filepath.Join(t.TempDir(), "missing.csv")))
}

type flakySource struct {
	fails int
	calls int
}

func (f *flakySource) FetchBars(context.Context, string, string, int) ([]models.PriceBar, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("temporary")
	}
	return []models.PriceBar{{Symbol: "BTCUSDT", Close: 1}}, nil
}

func (f *flakySource) FetchCurrentPrice(context.Context, string) (*models.Quote, error) {
	f.calls++
	return nil, Permanent(errors.New("unknown symbol"))
}

func TestRetryingSource(t *testing.T) {
	src := &flakySource{fails: 2}
	r := WithRetry(src, nil, RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond}, nil)

	bars, err := r.FetchBars(context.Background(), "BTCUSDT", "5m", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	src.calls = 0
	_, err = r.FetchCurrentPrice(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, src.calls)

	fr, err := r.FetchFundingRate(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
	assert.Nil(t, fr)
}

func TestBinanceSourceFetchBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[[1735689600000,"100.0","101.5","99.5","101.0","12.5",1735689899999,"1262.5",42,"6.0","606.0","0"]]`)
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL, "", zap.NewNop())
	bars, err := src.FetchBars(context.Background(), "BTCUSDT", "5m", 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 12.5, bars[0].Volume)
	assert.True(t, bars[0].Timestamp.Equal(time.UnixMilli(1735689600000)))
}

func TestBinanceSourceAPIErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL, "", zap.NewNop())
	_, err := src.FetchBars(context.Background(), "NOPE", "5m", 1)
	assert.ErrorIs(t, err, ErrPermanent)
}
