package service

import (
	"context"

	"PaperQuant/internal/domain/models"
)

// Scorer maps a complete feature vector to an entry score in [0, 1].
type Scorer interface {
	Predict(fv models.FeatureVector) (float64, error)
	FeatureNames() []string
	Version() string
}

// FitFunc trains a scorer on labeled rows.
type FitFunc func(ctx context.Context, rows []models.FeatureVector, labels []models.Label) (Scorer, error)

// MetricFunc scores predictions against binary targets; higher is better.
type MetricFunc func(scores, targets []float64) float64
