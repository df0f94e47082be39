package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"PaperQuant/pkg/util"
)

// ArtifactVersion tags the on-disk model format.
const ArtifactVersion = "paperquant.logistic/v1"

// ErrArtifactVersion is returned when loading an artifact written by another format version.
var ErrArtifactVersion = errors.New("unsupported model artifact version")

// Meta is the training record stored next to the weights.
type Meta struct {
	Mode          string    `json:"mode"`
	MeanCVScore   float64   `json:"mean_cv_auc"`
	BestFoldScore float64   `json:"best_fold_auc"`
	BestFold      int       `json:"best_fold"`
	FoldScores    []float64 `json:"fold_aucs"`
	Rows          int       `json:"rows"`
	TrainedAt     time.Time `json:"trained_at"`
}

type artifact struct {
	Version  string    `json:"version"`
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Meta     Meta      `json:"meta"`
}

// SaveArtifact writes the model atomically as JSON.
func SaveArtifact(path string, m *Logistic, meta Meta) error {
	a := artifact{
		Version:  ArtifactVersion,
		Features: m.names,
		Mean:     m.mean,
		Scale:    m.scale,
		Weights:  m.weights,
		Bias:     m.bias,
		Meta:     meta,
	}
	return util.WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("encode model: %w", err)
		}
		return nil
	})
}

// LoadArtifact reads a model written by SaveArtifact.
func LoadArtifact(path string) (*Logistic, Meta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read model: %w", err)
	}
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, Meta{}, fmt.Errorf("parse model: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, Meta{}, fmt.Errorf("%w: %q", ErrArtifactVersion, a.Version)
	}
	d := len(a.Features)
	if d == 0 || len(a.Mean) != d || len(a.Scale) != d || len(a.Weights) != d {
		return nil, Meta{}, fmt.Errorf("model shape mismatch: %d features", d)
	}
	return &Logistic{
		names:   a.Features,
		mean:    a.Mean,
		scale:   a.Scale,
		weights: a.Weights,
		bias:    a.Bias,
	}, a.Meta, nil
}
