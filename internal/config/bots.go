package config

import "binance-signal-bots-go/internal/models"

// DefaultBots 返回十个策略bot的默认参数表，顺序即评估顺序
func DefaultBots() []models.BotConfig {
	btcEth := []string{"BTCUSDT", "ETHUSDT"}
	all := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	return []models.BotConfig{
		{
			Name: "01_donchian", Kind: "donchian", Symbols: btcEth,
			Description: "Donchian breakout (trend following)",
			Params:      map[string]float64{"channel_period": 48, "atr_period": 14, "atr_trail_k": 2.0},
		},
		{
			Name: "02_ema_adx", Kind: "ema_adx", Symbols: btcEth,
			Description: "EMA trend with ADX strength filter",
			Params:      map[string]float64{"ema_short": 12, "ema_long": 48, "adx_period": 14, "adx_threshold": 25},
		},
		{
			Name: "03_bb_zscore", Kind: "bb_zscore", Symbols: btcEth,
			Description: "Bollinger z-score mean reversion",
			Params: map[string]float64{
				"bb_period": 20, "bb_std": 2.0, "zscore_entry": 2.0, "rsi_period": 14,
				"rsi_confirm": 30, "adx_period": 14, "adx_pause_threshold": 30,
			},
		},
		{
			Name: "04_vwap", Kind: "vwap", Symbols: btcEth,
			Description: "VWAP anchor (reversion / breakout switch)",
			Params:      map[string]float64{"vwap_period": 48, "deviation_threshold": 0.01, "volume_surge_k": 1.5},
		},
		{
			Name: "05_squeeze", Kind: "squeeze", Symbols: all,
			Description: "Volatility squeeze then expansion breakout",
			Params: map[string]float64{
				"bb_period": 20, "bb_std": 2.0, "bandwidth_low_pct": 0.25,
				"atr_period": 14, "atr_trail_k": 1.5, "lookback": 24,
			},
		},
		{
			Name: "06_vol_momentum", Kind: "vol_momentum", Symbols: all,
			Description: "Volume-weighted return momentum",
			Params:      map[string]float64{"momentum_period": 12, "volume_zscore_period": 48, "obv_sma_period": 12},
		},
		{
			Name: "07_pair_trade", Kind: "pair_trade", Symbols: btcEth,
			Description: "BTC-ETH log spread pair trade",
			Params:      map[string]float64{"spread_period": 48, "zscore_entry": 2.0, "zscore_exit": 0.5, "zscore_stop": 3.5},
		},
		{
			Name: "08_regime", Kind: "regime", Symbols: btcEth,
			Description: "Regime classification meta strategy",
			Params:      map[string]float64{"volatility_window": 24, "trend_window": 48, "adx_period": 14, "vol_history": 96},
		},
		{
			Name: "09_ml_gate", Kind: "ml_gate", Symbols: btcEth,
			Description: "Learned forward-return gate",
			Params: map[string]float64{
				"retrain_interval_hours": 24, "train_window_bars": 4032, "min_train_samples": 2000,
				"prediction_horizon": 6, "upper_threshold": 0.002, "lower_threshold": -0.001,
			},
		},
		{
			Name: "10_deriv", Kind: "derivatives", Symbols: btcEth,
			Description: "Funding rate and open interest aware",
			Params:      map[string]float64{"funding_extreme_pct": 0.01, "oi_change_threshold": 0.10},
		},
	}
}
