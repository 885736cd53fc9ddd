package strategy

import (
	"binance-signal-bots-go/internal/models"
	"binance-signal-bots-go/internal/predictor"
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memModelStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemModelStore() *memModelStore {
	return &memModelStore{blobs: make(map[string][]byte)}
}

func (m *memModelStore) LoadModel(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[key], nil
}

func (m *memModelStore) SaveModel(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = blob
	return nil
}

// fixedPredictor 始终预测同一个值
type fixedPredictor struct {
	pred   float64
	trains int
}

func (f *fixedPredictor) Train(x [][]float64, y []float64) error {
	f.trains++
	return nil
}

func (f *fixedPredictor) Predict(x []float64) (float64, error) { return f.pred, nil }

func (f *fixedPredictor) MarshalBinary() ([]byte, error) {
	return []byte(strconv.FormatFloat(f.pred, 'g', -1, 64)), nil
}

func (f *fixedPredictor) UnmarshalBinary(b []byte) error {
	v, err := strconv.ParseFloat(string(b), 64)
	f.pred = v
	return err
}

func mlBot(t *testing.T, store ModelStore, pred float64, minSamples float64, now func() time.Time) *Bot {
	t.Helper()
	cfg := models.BotConfig{
		Name: "09_ml_gate", Kind: "ml_gate", Symbols: []string{"BTCUSDT"},
		Params: map[string]float64{"min_train_samples": minSamples, "prediction_horizon": 6, "retrain_interval_hours": 24},
	}
	b, err := New(cfg, Deps{
		Models:       store,
		NewPredictor: func() predictor.Predictor { return &fixedPredictor{pred: pred} },
		Now:          now,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return b
}

func mlSignal(b *Bot, bars []models.PriceBar) models.Signal {
	return b.GetSignals(context.Background(), map[string][]models.PriceBar{"BTCUSDT": bars})["BTCUSDT"]
}

func TestFeaturesDefinedAfterWarmup(t *testing.T) {
	rows := Features(noisyBars(200))
	require.Len(t, rows, 200)
	assert.Len(t, rows[199], len(FeatureNames))
	for i, v := range rows[199] {
		assert.False(t, v != v, "feature %s undefined", FeatureNames[i])
	}

	x, y := TrainingSet(noisyBars(200), 6)
	assert.Equal(t, len(x), len(y))
	assert.NotEmpty(t, x)
	assert.Less(t, len(x), 200-6+1)
}

func TestMLGateMapsPrediction(t *testing.T) {
	now := func() time.Time { return t0 }
	bars := noisyBars(200)

	long := mlSignal(mlBot(t, nil, 0.005, 10, now), bars)
	assert.InDelta(t, 0.5, long.TargetPosition, 1e-12)
	assert.InDelta(t, 0.25, long.Confidence, 1e-12)

	capped := mlSignal(mlBot(t, nil, 0.05, 10, now), bars)
	assert.Equal(t, 0.8, capped.TargetPosition)
	assert.Equal(t, 0.8, capped.Confidence)

	short := mlSignal(mlBot(t, nil, -0.01, 10, now), bars)
	assert.Equal(t, 0.0, short.TargetPosition)
	assert.InDelta(t, 0.5, short.Confidence, 1e-12)

	flat := mlSignal(mlBot(t, nil, 0.0, 10, now), bars)
	assert.Equal(t, 0.1, flat.TargetPosition)
	assert.Equal(t, 0.2, flat.Confidence)
}

func TestMLGateHoldsWithoutModel(t *testing.T) {
	sig := mlSignal(mlBot(t, nil, 0.01, 100000, nil), noisyBars(200))
	assert.Equal(t, models.HoldSignal("model not trained"), sig)
}

func TestMLGatePersistsAndReloadsModel(t *testing.T) {
	store := newMemModelStore()
	bars := noisyBars(200)

	trained := mlSignal(mlBot(t, store, 0.005, 10, nil), bars)
	assert.InDelta(t, 0.5, trained.TargetPosition, 1e-12)
	require.Contains(t, store.blobs, "09_ml_gate/BTCUSDT")

	// 样本不足无法训练时使用已保存的模型
	reloaded := mlSignal(mlBot(t, store, 0, 100000, nil), bars)
	assert.InDelta(t, 0.5, reloaded.TargetPosition, 1e-12)
}

func TestMLGateRetrainsOnlyWhenStale(t *testing.T) {
	current := t0
	now := func() time.Time { return current }
	fp := &fixedPredictor{pred: 0.005}
	cfg := models.BotConfig{Name: "ml", Kind: "ml_gate", Symbols: []string{"BTCUSDT"},
		Params: map[string]float64{"min_train_samples": 10, "retrain_interval_hours": 24}}
	b, err := New(cfg, Deps{NewPredictor: func() predictor.Predictor { return fp }, Now: now, Logger: zap.NewNop()})
	require.NoError(t, err)

	bars := noisyBars(200)
	mlSignal(b, bars)
	current = current.Add(time.Hour)
	mlSignal(b, bars)
	assert.Equal(t, 1, fp.trains)

	current = current.Add(24 * time.Hour)
	mlSignal(b, bars)
	assert.Equal(t, 2, fp.trains)
}
