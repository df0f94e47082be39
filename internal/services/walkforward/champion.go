package walkforward

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/domain/service"
)

// Mode decides which model becomes the champion.
type Mode string

const (
	// ModeBestFold keeps the model of the fold with the highest validation metric.
	ModeBestFold Mode = "best_fold"
	// ModeRefit retrains on every row up to the end of the last validation range.
	ModeRefit Mode = "refit"
)

// Dataset is a feature matrix with aligned labels, in time order.
type Dataset struct {
	Rows   []models.FeatureVector
	Labels []models.Label
}

func (d Dataset) slice(r models.Range) Dataset {
	return Dataset{Rows: d.Rows[r.Start:r.End], Labels: d.Labels[r.Start:r.End]}
}

// FoldResult is the validation outcome of one fold.
type FoldResult struct {
	Fold  models.Fold `json:"fold"`
	Score float64     `json:"score"`
}

// Champion is the selected scorer plus the cross-validation record.
type Champion struct {
	Scorer    service.Scorer `json:"-"`
	Mode      Mode           `json:"mode"`
	BestFold  int            `json:"best_fold"`
	BestScore float64        `json:"best_fold_score"`
	MeanScore float64        `json:"mean_cv_score"`
	Folds     []FoldResult   `json:"folds"`
}

type options struct {
	mode    Mode
	workers int
}

// Option configures SelectChampion.
type Option func(*options)

func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithWorkers bounds how many folds are fitted concurrently.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// SelectChampion fits one model per fold, scores it on the fold's validation range
// and returns the champion. Ties go to the earliest fold; the outcome does not
// depend on the order in which concurrent fits finish.
func SelectChampion(ctx context.Context, data Dataset, folds []models.Fold, fit service.FitFunc, metric service.MetricFunc, opts ...Option) (*Champion, error) {
	o := options{mode: ModeBestFold, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mode != ModeBestFold && o.mode != ModeRefit {
		return nil, fmt.Errorf("unknown champion mode %q", o.mode)
	}
	if len(folds) == 0 {
		return nil, fmt.Errorf("no folds")
	}
	if len(data.Rows) != len(data.Labels) {
		return nil, fmt.Errorf("rows (%d) and labels (%d) differ", len(data.Rows), len(data.Labels))
	}
	if metric == nil {
		metric = AUC
	}

	for _, f := range folds {
		if f.Train.End > f.Validation.Start || f.Validation.End > len(data.Rows) || f.Train.Len() < 1 || f.Validation.Len() < 1 {
			return nil, fmt.Errorf("fold %d: invalid ranges %+v", f.Index, f)
		}
	}

	scorers := make([]service.Scorer, len(folds))
	results := make([]FoldResult, len(folds))

	g, gctx := errgroup.WithContext(ctx)
	if o.workers > 0 {
		g.SetLimit(o.workers)
	}
	for i, f := range folds {
		i, f := i, f
		g.Go(func() error {
			tr := data.slice(f.Train)
			m, err := fit(gctx, tr.Rows, tr.Labels)
			if err != nil {
				return fmt.Errorf("fold %d: fit: %w", f.Index, err)
			}
			score, err := evaluate(m, data.slice(f.Validation), metric)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f.Index, err)
			}
			scorers[i] = m
			results[i] = FoldResult{Fold: f, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	sum := 0.0
	for i, r := range results {
		sum += r.Score
		if r.Score > results[best].Score {
			best = i
		}
	}
	ch := &Champion{
		Scorer:    scorers[best],
		Mode:      o.mode,
		BestFold:  results[best].Fold.Index,
		BestScore: results[best].Score,
		MeanScore: sum / float64(len(results)),
		Folds:     results,
	}

	if o.mode == ModeRefit {
		all := data.slice(models.Range{Start: 0, End: folds[len(folds)-1].Validation.End})
		m, err := fit(ctx, all.Rows, all.Labels)
		if err != nil {
			return nil, fmt.Errorf("refit: %w", err)
		}
		ch.Scorer = m
	}
	return ch, nil
}

func evaluate(m service.Scorer, va Dataset, metric service.MetricFunc) (float64, error) {
	scores := make([]float64, len(va.Rows))
	targets := make([]float64, len(va.Rows))
	for j, fv := range va.Rows {
		p, err := m.Predict(fv)
		if err != nil {
			return 0, fmt.Errorf("predict row %d: %w", j, err)
		}
		scores[j] = p
		targets[j] = va.Labels[j].Target()
	}
	return metric(scores, targets), nil
}
