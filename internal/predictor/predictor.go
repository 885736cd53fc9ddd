// Package predictor 提供可训练、可序列化的前瞻收益率回归模型。
package predictor

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotTrained = errors.New("model not trained")
	ErrNoSamples  = errors.New("no training samples")
	ErrDimension  = errors.New("feature dimension mismatch")
	ErrSingular   = errors.New("singular system, increase regularization")
)

// Predictor 是可插拔的回归模型
type Predictor interface {
	Train(x [][]float64, y []float64) error
	Predict(x []float64) (float64, error)
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Linear 对标准化特征做岭回归
type Linear struct {
	lambda float64
	m      linearModel
}

type linearModel struct {
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Samples   int       `json:"samples"`
	ValMSE    float64   `json:"val_mse"`
	TrainedAt time.Time `json:"trained_at"`
}

// NewLinear 创建岭回归模型，lambda 为 L2 正则强度
func NewLinear(lambda float64) *Linear {
	if lambda < 0 {
		lambda = 0
	}
	return &Linear{lambda: lambda}
}

// Default 返回默认参数的模型
func Default() Predictor {
	return NewLinear(1.0)
}

// Trained 模型是否可用于预测
func (l *Linear) Trained() bool {
	return len(l.m.Weights) > 0
}

// Samples 最近一次训练的样本数
func (l *Linear) Samples() int { return l.m.Samples }

// ValidationMSE 最近一次训练在后 20% 样本上的均方误差
func (l *Linear) ValidationMSE() float64 { return l.m.ValMSE }

// Train 用前 80% 样本拟合，后 20% 计算验证误差，最后用全部样本重新拟合
func (l *Linear) Train(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return ErrNoSamples
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrDimension, len(x), len(y))
	}
	dim := len(x[0])
	for i, row := range x {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimension, i, len(row), dim)
		}
	}

	valMSE := math.NaN()
	split := len(x) * 8 / 10
	if split > 0 && split < len(x) {
		m, err := fit(x[:split], y[:split], l.lambda)
		if err != nil {
			return err
		}
		var se float64
		for i := split; i < len(x); i++ {
			d := m.predict(x[i]) - y[i]
			se += d * d
		}
		valMSE = se / float64(len(x)-split)
	}

	m, err := fit(x, y, l.lambda)
	if err != nil {
		return err
	}
	m.ValMSE = valMSE
	m.TrainedAt = time.Now().UTC()
	l.m = m
	return nil
}

// Predict 预测单行特征
func (l *Linear) Predict(x []float64) (float64, error) {
	if !l.Trained() {
		return 0, ErrNotTrained
	}
	if len(x) != len(l.m.Weights) {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrDimension, len(x), len(l.m.Weights))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("feature %d is undefined", i)
		}
	}
	return l.m.predict(x), nil
}

// MarshalBinary 序列化为 JSON
func (l *Linear) MarshalBinary() ([]byte, error) {
	if !l.Trained() {
		return nil, ErrNotTrained
	}
	m := l.m
	if math.IsNaN(m.ValMSE) {
		m.ValMSE = -1
	}
	return json.Marshal(m)
}

// UnmarshalBinary 从 JSON 恢复模型
func (l *Linear) UnmarshalBinary(data []byte) error {
	var m linearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if len(m.Weights) == 0 || len(m.Means) != len(m.Weights) || len(m.Scales) != len(m.Weights) {
		return fmt.Errorf("decode model: %w", ErrDimension)
	}
	l.m = m
	return nil
}

func (m linearModel) predict(x []float64) float64 {
	out := m.Bias
	for i, v := range x {
		out += m.Weights[i] * (v - m.Means[i]) / m.Scales[i]
	}
	return out
}

func fit(x [][]float64, y []float64, lambda float64) (linearModel, error) {
	n, dim := len(x), len(x[0])
	means := make([]float64, dim)
	scales := make([]float64, dim)
	constant := make([]bool, dim)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	for _, row := range x {
		for j, v := range row {
			d := v - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / float64(n))
		if scales[j] == 0 {
			scales[j] = 1
			constant[j] = true
		}
	}

	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	z := mat.NewDense(n, dim, nil)
	yc := mat.NewVecDense(n, nil)
	for r, row := range x {
		for j, v := range row {
			z.Set(r, j, (v-means[j])/scales[j])
		}
		yc.SetVec(r, y[r]-yMean)
	}

	// (ZᵀZ + λI) w = Zᵀ(y - ȳ)
	gram := mat.NewSymDense(dim, nil)
	gram.SymOuterK(1, z.T())
	for i := 0; i < dim; i++ {
		d := gram.At(i, i) + lambda
		// 常量特征标准化后恒为 0，权重固定为 0
		if constant[i] {
			d++
		}
		gram.SetSym(i, i, d)
	}
	rhs := mat.NewVecDense(dim, nil)
	rhs.MulVec(z.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return linearModel{}, ErrSingular
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil {
		return linearModel{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	w := make([]float64, dim)
	for i := range w {
		w[i] = sol.AtVec(i)
	}
	return linearModel{Means: means, Scales: scales, Weights: w, Bias: yMean, Samples: n}, nil
}
