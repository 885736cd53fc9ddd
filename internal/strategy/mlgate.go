package strategy

import (
	"binance-signal-bots-go/internal/indicator"
	"binance-signal-bots-go/internal/models"
	"binance-signal-bots-go/internal/predictor"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FeatureNames 与 Features 输出的列一一对应
var FeatureNames = []string{
	"rsi_14", "ema_12", "ema_48", "bb_bandwidth", "bb_zscore", "atr_pct", "adx", "di_diff",
	"volatility", "obv_slope", "vol_zscore", "ret_1", "ret_6", "ret_12",
}

// Features 为每根K线构造一行特征，不可用的位置为 NaN
func Features(bars []models.PriceBar) [][]float64 {
	closes := indicator.Closes(bars)
	rsi := indicator.RSI(closes, 14)
	ema12 := indicator.EMA(closes, 12)
	ema48 := indicator.EMA(closes, 48)
	bb := indicator.Bollinger(closes, 20, 2.0)
	atr := indicator.ATR(bars, 14)
	adx := indicator.ADX(bars, 14)
	vol := indicator.Volatility(closes, 24)
	obv := indicator.OBV(bars)
	obvEMA := indicator.EMA(obv, 12)
	volZ := indicator.ZScore(indicator.Volumes(bars), 48)
	ret1 := indicator.PctChange(closes, 1)
	ret6 := indicator.PctChange(closes, 6)
	ret12 := indicator.PctChange(closes, 12)

	ratio := func(num, den float64) float64 {
		if den == 0 {
			return math.NaN()
		}
		return num / den
	}

	rows := make([][]float64, len(bars))
	for i, c := range closes {
		rows[i] = []float64{
			rsi[i],
			ratio(ema12[i], c) - 1,
			ratio(ema48[i], c) - 1,
			bb.Bandwidth[i],
			bb.ZScore[i],
			ratio(atr[i], c),
			adx.ADX[i],
			adx.PlusDI[i] - adx.MinusDI[i],
			vol[i],
			ratio(obv[i]-obvEMA[i], math.Abs(obvEMA[i])),
			volZ[i],
			ret1[i],
			ret6[i],
			ret12[i],
		}
	}
	return rows
}

// TrainingSet 返回特征完整且 horizon 根之后收益率已知的样本
func TrainingSet(bars []models.PriceBar, horizon int) ([][]float64, []float64) {
	features := Features(bars)
	var x [][]float64
	var y []float64
	for i := 0; i+horizon < len(bars); i++ {
		if !indicator.AllDefined(features[i]...) || bars[i].Close == 0 {
			continue
		}
		target := bars[i+horizon].Close/bars[i].Close - 1
		if !indicator.Defined(target) {
			continue
		}
		x = append(x, features[i])
		y = append(y, target)
	}
	return x, y
}

// mlGate 用回归模型预测未来收益率，作为开仓的门控
type mlGate struct {
	name         string
	store        ModelStore
	newPredictor func() predictor.Predictor
	now          func() time.Time
	logger       *zap.Logger

	retrain     time.Duration
	trainWindow int
	minSamples  int
	horizon     int
	upper       float64
	lower       float64

	mu        sync.Mutex
	models    map[string]predictor.Predictor
	lastTrain map[string]time.Time
	loaded    map[string]bool
}

func newMLGate(cfg models.BotConfig, deps Deps) (*Bot, error) {
	p := newParams(cfg)
	s := &mlGate{
		name:         cfg.Name,
		store:        deps.Models,
		newPredictor: deps.NewPredictor,
		now:          deps.now,
		logger:       deps.logger().With(zap.String("bot", cfg.Name)),
		retrain:      time.Duration(p.positive("retrain_interval_hours", 24) * float64(time.Hour)),
		trainWindow:  p.period("train_window_bars", 4032),
		minSamples:   p.period("min_train_samples", 2000),
		horizon:      p.period("prediction_horizon", 6),
		upper:        p.float("upper_threshold", 0.002),
		lower:        p.float("lower_threshold", -0.001),
		models:       make(map[string]predictor.Predictor),
		lastTrain:    make(map[string]time.Time),
		loaded:       make(map[string]bool),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if s.newPredictor == nil {
		s.newPredictor = predictor.Default
	}
	return newSingleBot(cfg, deps, s), nil
}

func (s *mlGate) modelKey(symbol string) string {
	return s.name + "/" + symbol
}

// load 首次使用时从模型库读取已保存的模型
func (s *mlGate) load(symbol string) {
	if s.loaded[symbol] || s.store == nil {
		return
	}
	s.loaded[symbol] = true
	blob, err := s.store.LoadModel(s.modelKey(symbol))
	if err != nil {
		s.logger.Warn("failed to load model", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if blob == nil {
		return
	}
	m := s.newPredictor()
	if err := m.UnmarshalBinary(blob); err != nil {
		s.logger.Warn("stored model is unreadable, will retrain", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	s.models[symbol] = m
	s.logger.Info("model loaded", zap.String("symbol", symbol))
}

func (s *mlGate) needsRetrain(symbol string) bool {
	if _, ok := s.models[symbol]; !ok {
		return true
	}
	last, ok := s.lastTrain[symbol]
	if !ok {
		return true
	}
	return s.now().Sub(last) >= s.retrain
}

func (s *mlGate) train(bars []models.PriceBar, symbol string) {
	if len(bars) > s.trainWindow {
		bars = bars[len(bars)-s.trainWindow:]
	}
	x, y := TrainingSet(bars, s.horizon)
	if len(x) < s.minSamples {
		s.logger.Warn("not enough training samples",
			zap.String("symbol", symbol), zap.Int("samples", len(x)), zap.Int("required", s.minSamples))
		return
	}

	m := s.newPredictor()
	if err := m.Train(x, y); err != nil {
		s.logger.Error("model training failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	s.models[symbol] = m
	s.lastTrain[symbol] = s.now()
	s.logger.Info("model trained", zap.String("symbol", symbol), zap.Int("samples", len(x)))

	if s.store == nil {
		return
	}
	blob, err := m.MarshalBinary()
	if err == nil {
		err = s.store.SaveModel(s.modelKey(symbol), blob)
	}
	if err != nil {
		s.logger.Warn("failed to persist model", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (s *mlGate) ComputeSignal(_ context.Context, bars []models.PriceBar, symbol string) (models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load(symbol)
	if s.needsRetrain(symbol) {
		s.train(bars, symbol)
	}
	m, ok := s.models[symbol]
	if !ok {
		return models.HoldSignal("model not trained"), nil
	}

	features := Features(bars)
	last := features[len(features)-1]
	if !indicator.AllDefined(last...) {
		return models.HoldSignal("features unavailable"), nil
	}
	pred, err := m.Predict(last)
	if err != nil {
		return models.HoldSignal(fmt.Sprintf("prediction error: %v", err)), nil
	}

	switch {
	case pred > s.upper:
		pos := math.Min(0.8, pred*100)
		return signal(pos, math.Min(0.8, math.Abs(pred)*50), fmt.Sprintf("predicted %+.4f, long %.2f", pred, pos)), nil
	case pred < s.lower:
		return signal(0.0, math.Min(0.6, math.Abs(pred)*50), fmt.Sprintf("predicted %+.4f, close", pred)), nil
	default:
		return signal(0.1, 0.2, fmt.Sprintf("predicted %+.4f, neutral", pred)), nil
	}
}
