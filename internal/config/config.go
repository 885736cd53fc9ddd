package config

import (
	"binance-signal-bots-go/internal/models"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig 从指定路径加载配置文件（.json 或 .yaml/.yml），补齐默认值并校验
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults 为未设置的字段填入默认值
func ApplyDefaults(cfg *models.Config) {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	if cfg.Interval == "" {
		cfg.Interval = "5m"
	}
	if cfg.BarLimit == 0 {
		cfg.BarLimit = 500
	}
	if cfg.MinBars == 0 {
		cfg.MinBars = 50
	}
	if cfg.InitialBalance == 0 {
		cfg.InitialBalance = 50000
	}
	if cfg.FixedFXRate == 0 {
		cfg.FixedFXRate = 1
	}
	if cfg.TakerFeeRate == 0 && cfg.SlippageRate == 0 {
		cfg.TakerFeeRate = 0.001
		cfg.SlippageRate = 0.0005
	}
	if cfg.CircuitBreakerThreshold == 0 {
		cfg.CircuitBreakerThreshold = 0.20
	}
	if cfg.PositionChangeThreshold == 0 {
		cfg.PositionChangeThreshold = 0.05
	}
	if cfg.PriceAnomalyThreshold == 0 {
		cfg.PriceAnomalyThreshold = 0.5
	}
	if cfg.TickIntervalSec == 0 {
		cfg.TickIntervalSec = 300
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInitialDelayMs == 0 {
		cfg.RetryInitialDelayMs = 1000
	}
	if cfg.WebSocketPongTimeoutSec == 0 {
		cfg.WebSocketPongTimeoutSec = 60
	}
	if cfg.WebSocketReconnectDelayS == 0 {
		cfg.WebSocketReconnectDelayS = 5
	}
	if cfg.StateDBPath == "" {
		cfg.StateDBPath = "data/state"
	}
	if cfg.LedgerDBPath == "" {
		cfg.LedgerDBPath = "data/ledger.db"
	}
	if cfg.StreamWSURL == "" {
		cfg.StreamWSURL = "wss://stream.binance.com:9443"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "bots.reports"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
	if len(cfg.Bots) == 0 {
		cfg.Bots = DefaultBots()
	}
}

// Validate 检查配置是否可用
func Validate(cfg *models.Config) error {
	var errs []error
	if cfg.InitialBalance <= 0 {
		errs = append(errs, errors.New("initial_balance must be positive"))
	}
	if cfg.TotalCostRate() < 0 || cfg.TotalCostRate() >= 1 {
		errs = append(errs, fmt.Errorf("taker_fee_rate + slippage_rate must be in [0,1), got %v", cfg.TotalCostRate()))
	}
	if cfg.CircuitBreakerThreshold <= 0 || cfg.CircuitBreakerThreshold > 1 {
		errs = append(errs, fmt.Errorf("circuit_breaker_threshold must be in (0,1], got %v", cfg.CircuitBreakerThreshold))
	}
	if cfg.PositionChangeThreshold < 0 || cfg.PositionChangeThreshold >= 1 {
		errs = append(errs, fmt.Errorf("position_change_threshold must be in [0,1), got %v", cfg.PositionChangeThreshold))
	}
	if cfg.MinBars < 2 {
		errs = append(errs, fmt.Errorf("min_bars must be at least 2, got %d", cfg.MinBars))
	}

	seen := make(map[string]bool, len(cfg.Bots))
	for _, b := range cfg.Bots {
		if b.Name == "" || b.Kind == "" {
			errs = append(errs, fmt.Errorf("bot entry needs both name and kind: %+v", b))
			continue
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("duplicate bot name %q", b.Name))
		}
		seen[b.Name] = true
		if len(b.Symbols) == 0 {
			errs = append(errs, fmt.Errorf("bot %q has no symbols", b.Name))
		}
	}
	return errors.Join(errs...)
}
