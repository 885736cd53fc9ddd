package reporter

import (
	"fmt"
	"strings"
	"time"

	"binance-signal-bots-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Ledger 报告所需的账本查询
type Ledger interface {
	RecentSnapshots(botName string, since time.Time) ([]models.BalanceSnapshot, error)
	BotTrades(botName string, since time.Time) ([]models.TradeRecord, error)
}

// StateReader 读取bot状态
type StateReader interface {
	LoadBotState(botName string) (*models.BotState, error)
}

// Metrics 单个bot的汇总指标
type Metrics struct {
	BotName          string
	Active           bool
	Balance          float64 // 现金
	TotalAsset       float64 // 最近一次快照的总资产，无快照时等于现金
	TotalProfit      float64
	ProfitPercentage float64
	TradesToday      int
	TotalTrades      int
	Fees             float64 // 成交价与报价之差累计，即手续费+滑点
	MaxDrawdown      float64 // 百分比
}

// DailyReport 所有bot的日报
type DailyReport struct {
	Date           time.Time
	InitialBalance float64
	Bots           []Metrics
	TotalAsset     float64
	TotalProfit    float64
	TotalPct       float64
	ActiveCount    int
}

// BuildDailyReport 按 botNames 的顺序汇总每个bot的状态、快照和成交
func BuildDailyReport(ledger Ledger, states StateReader, botNames []string, initialBalance float64, now time.Time) (*DailyReport, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	r := &DailyReport{Date: dayStart, InitialBalance: initialBalance}

	for _, name := range botNames {
		m, err := botMetrics(ledger, states, name, initialBalance, dayStart)
		if err != nil {
			return nil, err
		}
		r.Bots = append(r.Bots, m)
		r.TotalAsset += m.TotalAsset
		r.TotalProfit += m.TotalProfit
		if m.Active {
			r.ActiveCount++
		}
	}
	if base := initialBalance * float64(len(botNames)); base != 0 {
		r.TotalPct = r.TotalProfit / base * 100
	}
	return r, nil
}

func botMetrics(ledger Ledger, states StateReader, name string, initialBalance float64, dayStart time.Time) (Metrics, error) {
	m := Metrics{BotName: name, Active: true, Balance: initialBalance}

	st, err := states.LoadBotState(name)
	if err != nil {
		return m, fmt.Errorf("failed to load state for %s: %w", name, err)
	}
	if st != nil {
		m.Balance = st.Balance
		m.Active = st.IsActive
	}
	m.TotalAsset = m.Balance

	snaps, err := ledger.RecentSnapshots(name, time.Time{})
	if err != nil {
		return m, fmt.Errorf("failed to load snapshots for %s: %w", name, err)
	}
	if len(snaps) > 0 {
		m.TotalAsset = snaps[len(snaps)-1].TotalAsset
		equity := make([]float64, len(snaps))
		for i, s := range snaps {
			equity[i] = s.TotalAsset
		}
		m.MaxDrawdown = calculateMaxDrawdown(equity) * 100
	}

	trades, err := ledger.BotTrades(name, time.Time{})
	if err != nil {
		return m, fmt.Errorf("failed to load trades for %s: %w", name, err)
	}
	for _, t := range trades {
		if t.Action == models.Hold {
			continue
		}
		m.TotalTrades++
		if !t.Timestamp.Before(dayStart) {
			m.TradesToday++
		}
		m.Fees += t.Quantity * abs(t.EffectivePrice-t.Price)
	}

	m.TotalProfit = m.TotalAsset - initialBalance
	if initialBalance != 0 {
		m.ProfitPercentage = m.TotalProfit / initialBalance * 100
	}
	return m, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0.0
	}
	peak := equityCurve[0]
	maxDrawdown := 0.0

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// Render 生成文本表格，金额乘以 fxRate 换算
func (r *DailyReport) Render(fxRate float64) string {
	if fxRate <= 0 {
		fxRate = 1
	}
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Daily report %s", r.Date.Format("2006-01-02")))
	t.AppendHeader(table.Row{"", "Bot", "Total asset", "PnL %", "Trades", "Max DD %"})
	for _, m := range r.Bots {
		t.AppendRow(table.Row{
			status(m.Active),
			m.BotName,
			fmt.Sprintf("%.0f", m.TotalAsset*fxRate),
			fmt.Sprintf("%+.1f", m.ProfitPercentage),
			m.TradesToday,
			fmt.Sprintf("%.1f", m.MaxDrawdown),
		})
	}
	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("active %d/%d", r.ActiveCount, len(r.Bots)),
		fmt.Sprintf("%.0f", r.TotalAsset*fxRate),
		fmt.Sprintf("%+.1f", r.TotalPct),
		"",
		fmt.Sprintf("PnL %.0f", r.TotalProfit*fxRate),
	})
	t.SetStyle(table.StyleLight)
	return t.Render()
}

func status(active bool) string {
	if active {
		return "🟢"
	}
	return "🔴"
}

// BuildHourlyDigest 列出非 HOLD 成交，没有成交时返回空字符串
func BuildHourlyDigest(trades []models.TradeRecord, since time.Time) string {
	var b strings.Builder
	n := 0
	for _, tr := range trades {
		if tr.Action == models.Hold {
			continue
		}
		if n == 0 {
			fmt.Fprintf(&b, "🔔 Trades since %s\n", since.UTC().Format("15:04 UTC"))
		}
		n++
		icon := "🟢"
		if tr.Action == models.Sell {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "[%s] %s %s %s @%.1f x %.4f\n", shortName(tr.BotName), icon, tr.Action, tr.Symbol, tr.Price, tr.Quantity)
	}
	return strings.TrimRight(b.String(), "\n")
}

// shortName "01_donchian" -> "01"
func shortName(botName string) string {
	if i := strings.IndexByte(botName, '_'); i > 0 {
		return botName[:i]
	}
	return botName
}
