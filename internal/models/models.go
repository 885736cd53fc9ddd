package models

import "time"

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Symbols        []string `json:"symbols" yaml:"symbols"`                 // 监控的交易对，如 "BTCUSDT"
	Interval       string   `json:"interval" yaml:"interval"`               // K线周期，默认 5m
	BarLimit       int      `json:"bar_limit" yaml:"bar_limit"`             // 每次评估拉取的K线数量
	MinBars        int      `json:"min_bars" yaml:"min_bars"`               // 策略评估所需的最少K线数量
	InitialBalance float64  `json:"initial_balance" yaml:"initial_balance"` // 每个bot的初始虚拟资金
	FixedFXRate    float64  `json:"fixed_fx_rate" yaml:"fixed_fx_rate"`     // 报告用的固定汇率

	// 模拟撮合配置
	TakerFeeRate             float64 `json:"taker_fee_rate" yaml:"taker_fee_rate"`                         // 吃单手续费率
	SlippageRate             float64 `json:"slippage_rate" yaml:"slippage_rate"`                           // 滑点率
	CircuitBreakerThreshold  float64 `json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`   // 亏损达到初始资金的该比例时停用bot
	PositionChangeThreshold  float64 `json:"position_change_threshold" yaml:"position_change_threshold"`   // 仓位变化的最小阈值（死区）
	PriceAnomalyThreshold    float64 `json:"price_anomaly_threshold" yaml:"price_anomaly_threshold"`       // 相邻价格变化超过该比例视为异常
	TickIntervalSec          int     `json:"tick_interval_sec" yaml:"tick_interval_sec"`                   // run 模式下的评估周期(秒)
	RetryAttempts            int     `json:"retry_attempts" yaml:"retry_attempts"`                         // 行情请求的重试次数
	RetryInitialDelayMs      int     `json:"retry_initial_delay_ms" yaml:"retry_initial_delay_ms"`         // 重试前的初始延迟毫秒数
	WebSocketPongTimeoutSec  int     `json:"websocket_pong_timeout_sec" yaml:"websocket_pong_timeout_sec"` // WebSocket Pong消息超时时间(秒)
	WebSocketReconnectDelayS int     `json:"websocket_reconnect_delay_sec" yaml:"websocket_reconnect_delay_sec"`

	StateDBPath  string      `json:"state_db_path" yaml:"state_db_path"`   // badger 状态目录
	LedgerDBPath string      `json:"ledger_db_path" yaml:"ledger_db_path"` // sqlite 账本文件
	StreamWSURL  string      `json:"stream_ws_url" yaml:"stream_ws_url"`   // K线推送地址
	Redis        RedisConfig `json:"redis" yaml:"redis"`
	LogConfig    LogConfig   `json:"log" yaml:"log"`
	Bots         []BotConfig `json:"bots" yaml:"bots"` // 按评估顺序排列
}

// TotalCostRate 返回手续费与滑点的合计费率
func (c *Config) TotalCostRate() float64 {
	return c.TakerFeeRate + c.SlippageRate
}

// BotConfig 定义单个策略bot的配置
type BotConfig struct {
	Name        string             `json:"name" yaml:"name"`
	Kind        string             `json:"kind" yaml:"kind"` // 策略类型, e.g. "donchian"
	Description string             `json:"description" yaml:"description"`
	Symbols     []string           `json:"symbols" yaml:"symbols"`
	Disabled    bool               `json:"disabled" yaml:"disabled"`
	Params      map[string]float64 `json:"params" yaml:"params"`
}

// Param 返回参数值，缺失时使用默认值
func (b BotConfig) Param(key string, def float64) float64 {
	if v, ok := b.Params[key]; ok {
		return v
	}
	return def
}

// RedisConfig 通知通道配置，Addr 为空表示不启用
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}

// PriceBar 一根K线
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Quote 最新成交价
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// FundingRate 永续合约资金费率
type FundingRate struct {
	Symbol    string    `json:"symbol"`
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// OpenInterest 未平仓合约量
type OpenInterest struct {
	Symbol    string    `json:"symbol"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// DerivativeSnapshot 记录一次资金费率与持仓量的采样
type DerivativeSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Symbol       string    `json:"symbol"`
	FundingRate  float64   `json:"funding_rate"`
	OpenInterest float64   `json:"open_interest"`
}
