package reporter

import (
	"strings"
	"testing"
	"time"

	"binance-signal-bots-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	snaps  map[string][]models.BalanceSnapshot
	trades map[string][]models.TradeRecord
}

func (f *fakeLedger) RecentSnapshots(bot string, _ time.Time) ([]models.BalanceSnapshot, error) {
	return f.snaps[bot], nil
}

func (f *fakeLedger) BotTrades(bot string, _ time.Time) ([]models.TradeRecord, error) {
	return f.trades[bot], nil
}

type fakeStates map[string]*models.BotState

func (f fakeStates) LoadBotState(name string) (*models.BotState, error) {
	return f[name], nil
}

func TestCalculateMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, calculateMaxDrawdown([]float64{100}))
	assert.InDelta(t, 0.25, calculateMaxDrawdown([]float64{100, 120, 90, 110, 100}), 1e-12)
	assert.Equal(t, 0.0, calculateMaxDrawdown([]float64{100, 110, 120}))
}

func TestBuildDailyReport(t *testing.T) {
	now := time.Date(2024, 6, 2, 18, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	ledger := &fakeLedger{
		snaps: map[string][]models.BalanceSnapshot{
			"01_a": {{TotalAsset: 50000}, {TotalAsset: 55000}, {TotalAsset: 44000}, {TotalAsset: 52000}},
		},
		trades: map[string][]models.TradeRecord{
			"01_a": {
				{Timestamp: yesterday, Action: models.Buy, Price: 100, EffectivePrice: 100.15, Quantity: 10},
				{Timestamp: now.Add(-time.Hour), Action: models.Sell, Price: 100, EffectivePrice: 99.85, Quantity: 10},
				{Timestamp: now.Add(-time.Hour), Action: models.Hold},
			},
		},
	}
	states := fakeStates{
		"01_a": {BotName: "01_a", Balance: 12000, IsActive: true},
		"02_b": {BotName: "02_b", Balance: 39000, IsActive: false},
	}

	r, err := BuildDailyReport(ledger, states, []string{"01_a", "02_b", "03_new"}, 50000, now)
	require.NoError(t, err)
	require.Len(t, r.Bots, 3)

	a := r.Bots[0]
	assert.Equal(t, 52000.0, a.TotalAsset)
	assert.InDelta(t, 4.0, a.ProfitPercentage, 1e-9)
	assert.Equal(t, 2, a.TotalTrades)
	assert.Equal(t, 1, a.TradesToday)
	assert.InDelta(t, 3.0, a.Fees, 1e-9)
	assert.InDelta(t, 20.0, a.MaxDrawdown, 1e-9)

	b := r.Bots[1]
	assert.False(t, b.Active)
	assert.Equal(t, 39000.0, b.TotalAsset)

	c := r.Bots[2]
	assert.True(t, c.Active)
	assert.Equal(t, 50000.0, c.TotalAsset)

	assert.Equal(t, 2, r.ActiveCount)
	assert.InDelta(t, 52000+39000+50000, r.TotalAsset, 1e-9)
	assert.InDelta(t, -9000, r.TotalProfit, 1e-9)

	out := r.Render(150)
	assert.Contains(t, out, "2024-06-02")
	assert.Contains(t, out, "01_a")
	assert.Contains(t, out, "7800000")
	// go-pretty 默认把页脚转成大写
	assert.Contains(t, out, "ACTIVE 2/3")
}

func TestHourlyDigest(t *testing.T) {
	since := time.Date(2024, 6, 2, 17, 0, 0, 0, time.UTC)
	assert.Empty(t, BuildHourlyDigest(nil, since))
	assert.Empty(t, BuildHourlyDigest([]models.TradeRecord{{Action: models.Hold}}, since))

	out := BuildHourlyDigest([]models.TradeRecord{
		{BotName: "01_donchian", Action: models.Buy, Symbol: "BTCUSDT", Price: 65000, Quantity: 0.5},
		{BotName: "07_pair_trade", Action: models.Sell, Symbol: "ETHUSDT", Price: 3000, Quantity: 2},
	}, since)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "17:00 UTC")
	assert.Contains(t, lines[1], "[01]")
	assert.Contains(t, lines[1], "BUY BTCUSDT @65000.0 x 0.5000")
	assert.Contains(t, lines[2], "[07]")
	assert.Contains(t, lines[2], "SELL")
}
