package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"binance-signal-bots-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func klineMessage(symbol string, openTime int64, close string, closed bool) string {
	return fmt.Sprintf(`{"stream":"%s@kline_5m","data":{"e":"kline","s":"%s","k":{"t":%d,"s":"%s","i":"5m","o":"100","h":"101","l":"99","c":"%s","v":"12.5","x":%t}}}`,
		strings.ToLower(symbol), symbol, openTime, symbol, close, closed)
}

type memSink struct {
	mu   sync.Mutex
	bars []models.PriceBar
}

func (m *memSink) InsertBars(bars []models.PriceBar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars = append(m.bars, bars...)
	return len(bars), nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bars)
}

func TestParseKline(t *testing.T) {
	bar, closed, err := ParseKline([]byte(klineMessage("BTCUSDT", 1700000000000, "100.5", true)))
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, "BTCUSDT", bar.Symbol)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), bar.Timestamp)
	assert.Equal(t, 100.5, bar.Close)
	assert.Equal(t, 12.5, bar.Volume)

	_, _, err = ParseKline([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
	_, _, err = ParseKline([]byte(klineMessage("BTCUSDT", 1, "abc", true)))
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	c := New(Options{BaseURL: "wss://stream.binance.com:9443/", Symbols: []string{"BTCUSDT", "ETHUSDT"}}, &memSink{}, nil)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@kline_5m/ethusdt@kline_5m", c.StreamURL())
}

func TestCollectorStoresClosedKlinesAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connections := 0
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		connections++
		n := connections
		gotPath = r.URL.String()
		mu.Unlock()

		base := int64(1700000000000) + int64(n)*300000
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineMessage("BTCUSDT", base, "100", false)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineMessage("BTCUSDT", base, "101", true)))
		// 关闭连接以触发重连
	}))
	defer srv.Close()

	sink := &memSink{}
	c := New(Options{
		BaseURL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:        []string{"BTCUSDT"},
		ReconnectDelay: 10 * time.Millisecond,
	}, sink, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.bars {
		assert.Equal(t, 101.0, b.Close)
	}
	mu.Lock()
	assert.Equal(t, "/stream?streams=btcusdt@kline_5m", gotPath)
	mu.Unlock()
}

func TestRunWithoutSymbols(t *testing.T) {
	err := New(Options{BaseURL: "ws://localhost"}, &memSink{}, nil).Run(context.Background())
	assert.Error(t, err)
}
