package models

import "time"

// BotState 定义了每个bot需要持久化的关键数据
type BotState struct {
	BotName     string    `json:"bot_name"`     // Bot的唯一标识符
	Balance     float64   `json:"balance"`      // 当前现金余额 (计价货币)
	IsActive    bool      `json:"is_active"`    // 熔断后置为 false，仅能在外部重置
	LastUpdated time.Time `json:"last_updated"` // 状态最后更新的时间戳
}

// Action 定义了交易方向的类型
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Signal 是策略对单个交易对给出的目标仓位
type Signal struct {
	TargetPosition float64  `json:"target_position"` // 0.0 (空仓) ~ 1.0 (满仓)，只做多
	Confidence     float64  `json:"confidence"`      // 0.0 ~ 1.0
	Reason         string   `json:"reason"`          // 判断理由，用于日志和报告
	StopLoss       *float64 `json:"stop_loss,omitempty"`
}

// HoldSignal 返回 target_position=0 且 confidence=0 的默认信号
func HoldSignal(reason string) Signal {
	return Signal{Reason: reason}
}

// TradeRecord 一笔模拟成交（只追加）
type TradeRecord struct {
	ID             int64     `json:"id"`
	TradeID        string    `json:"trade_id"`
	Timestamp      time.Time `json:"timestamp"`
	BotName        string    `json:"bot_name"`
	Symbol         string    `json:"symbol"`
	Action         Action    `json:"action"`
	TargetPosition float64   `json:"target_position"`
	PrevPosition   float64   `json:"prev_position"`
	Price          float64   `json:"price"`
	EffectivePrice float64   `json:"effective_price"`
	Quantity       float64   `json:"quantity"`
	BalanceAfter   float64   `json:"balance_after"`
	PositionAfter  float64   `json:"position_after"` // 成交后持有的数量
	ProfitLoss     float64   `json:"profit_loss"`
	Confidence     float64   `json:"confidence"`
	Note           string    `json:"note"`
}

// BalanceSnapshot 周期性的资产快照（只追加，模拟逻辑不回读）
type BalanceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	BotName       string    `json:"bot_name"`
	Balance       float64   `json:"balance"`
	PositionValue float64   `json:"position_value"`
	TotalAsset    float64   `json:"total_asset"`
	DailyPnL      float64   `json:"daily_pnl"`
	TotalPnL      float64   `json:"total_pnl"`
	TradeCount    int       `json:"trade_count"`
	IsActive      bool      `json:"is_active"`
}
