package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/domain/service"
)

var (
	// ErrFeatureMismatch is returned when a vector's feature names differ from the model's.
	ErrFeatureMismatch = errors.New("feature names do not match model")
	// ErrPartialVector is returned when asked to score an incomplete vector.
	ErrPartialVector = errors.New("partial feature vector")
)

// Logistic is an L2-regularized logistic regression over standardized features.
type Logistic struct {
	names   []string
	mean    []float64
	scale   []float64
	weights []float64
	bias    float64
}

var _ service.Scorer = (*Logistic)(nil)

// Predict returns P(take-profit first) for a complete vector.
func (m *Logistic) Predict(fv models.FeatureVector) (float64, error) {
	if fv.Partial {
		return 0, ErrPartialVector
	}
	if !sameNames(m.names, fv.Names) || len(fv.Values) != len(m.names) {
		return 0, fmt.Errorf("%w: model has %d features, vector has %d", ErrFeatureMismatch, len(m.names), len(fv.Names))
	}
	z := m.bias
	for i, x := range fv.Values {
		z += m.weights[i] * m.standardize(i, x)
	}
	return sigmoid(z), nil
}

func (m *Logistic) FeatureNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

func (m *Logistic) Version() string { return ArtifactVersion }

func (m *Logistic) standardize(i int, x float64) float64 {
	v := (x - m.mean[i]) / m.scale[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// TrainConfig controls gradient descent.
type TrainConfig struct {
	Epochs       int     `yaml:"epochs" default:"300" validate:"gte=1"`
	LearningRate float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0"`
	L2           float64 `yaml:"l2" default:"0.001" validate:"gte=0"`
}

// Fitter returns a deterministic FitFunc: full-batch gradient descent from zero weights.
func Fitter(cfg TrainConfig) service.FitFunc {
	return func(ctx context.Context, rows []models.FeatureVector, labels []models.Label) (service.Scorer, error) {
		return Fit(ctx, rows, labels, cfg)
	}
}

// Fit trains a Logistic on complete rows.
func Fit(ctx context.Context, rows []models.FeatureVector, labels []models.Label, cfg TrainConfig) (*Logistic, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("rows (%d) and labels (%d) differ", len(rows), len(labels))
	}
	if cfg.Epochs < 1 || cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid train config %+v", cfg)
	}
	names := rows[0].Names
	d := len(names)
	for i, r := range rows {
		if r.Partial || len(r.Values) != d || !sameNames(names, r.Names) {
			return nil, fmt.Errorf("row %d: %w", i, ErrFeatureMismatch)
		}
	}

	m := &Logistic{
		names:   append([]string(nil), names...),
		mean:    make([]float64, d),
		scale:   make([]float64, d),
		weights: make([]float64, d),
	}
	n := float64(len(rows))
	for _, r := range rows {
		for j, x := range r.Values {
			m.mean[j] += finite(x) / n
		}
	}
	for _, r := range rows {
		for j, x := range r.Values {
			dx := finite(x) - m.mean[j]
			m.scale[j] += dx * dx / n
		}
	}
	for j := range m.scale {
		m.scale[j] = math.Sqrt(m.scale[j])
		if m.scale[j] < 1e-12 {
			m.scale[j] = 1
		}
	}

	xs := make([][]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, r := range rows {
		xs[i] = make([]float64, d)
		for j, x := range r.Values {
			xs[i][j] = m.standardize(j, x)
		}
		ys[i] = labels[i].Target()
	}

	grad := make([]float64, d)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range grad {
			grad[j] = 0
		}
		gb := 0.0
		for i, x := range xs {
			z := m.bias
			for j, v := range x {
				z += m.weights[j] * v
			}
			e := sigmoid(z) - ys[i]
			for j, v := range x {
				grad[j] += e * v
			}
			gb += e
		}
		for j := range m.weights {
			m.weights[j] -= cfg.LearningRate * (grad[j]/n + cfg.L2*m.weights[j])
		}
		m.bias -= cfg.LearningRate * gb / n
	}
	return m, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// CheckFeatures fails with ErrFeatureMismatch unless s was trained on exactly
// the given feature names, in order.
func CheckFeatures(s service.Scorer, names []string) error {
	got := s.FeatureNames()
	if sameNames(got, names) {
		return nil
	}
	for i := 0; i < len(got) && i < len(names); i++ {
		if got[i] != names[i] {
			return fmt.Errorf("%w: scorer %s expects %q at %d, computer has %q", ErrFeatureMismatch, s.Version(), got[i], i, names[i])
		}
	}
	return fmt.Errorf("%w: scorer %s expects %d features, computer has %d", ErrFeatureMismatch, s.Version(), len(got), len(names))
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
