package walkforward

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"PaperQuant/internal/domain/models"
)

// ErrTooFewRows is returned when the series cannot hold the requested folds.
var ErrTooFewRows = errors.New("too few rows for walk-forward split")

// Splitter produces expanding-window folds: validation blocks of equal size
// n/(Folds+1) at the end of the series, each trained on everything before it.
// Embargo rows are removed from the tail of every train range so that labels
// whose forward window reaches into validation are not trained on.
type Splitter struct {
	Folds   int
	Embargo int
}

// Split returns Folds folds over a series of n rows, in time order.
func (s Splitter) Split(n int) ([]models.Fold, error) {
	if s.Folds < 1 {
		return nil, fmt.Errorf("folds must be >= 1, got %d", s.Folds)
	}
	if s.Embargo < 0 {
		return nil, fmt.Errorf("embargo must be >= 0, got %d", s.Embargo)
	}
	size := n / (s.Folds + 1)
	if size < 1 {
		return nil, fmt.Errorf("%w: %d rows, %d folds", ErrTooFewRows, n, s.Folds)
	}
	first := n - s.Folds*size
	if first-s.Embargo < 1 {
		return nil, fmt.Errorf("%w: first train range has %d rows after embargo %d", ErrTooFewRows, first-s.Embargo, s.Embargo)
	}

	folds := make([]models.Fold, 0, s.Folds)
	for k := 0; k < s.Folds; k++ {
		start := first + k*size
		folds = append(folds, models.Fold{
			Index:      k,
			Train:      models.Range{Start: 0, End: start - s.Embargo},
			Validation: models.Range{Start: start, End: start + size},
		})
	}
	return folds, nil
}

// PurgeByTime shortens every train range until no training row's label window,
// which ends horizon after its close, reaches the close of the fold's first
// validation row. Rows of several symbols may share the time axis; closes must
// be non-decreasing.
func PurgeByTime(folds []models.Fold, closes []time.Time, horizon time.Duration) ([]models.Fold, error) {
	for i := 1; i < len(closes); i++ {
		if closes[i].Before(closes[i-1]) {
			return nil, fmt.Errorf("close times out of order at row %d", i)
		}
	}
	out := make([]models.Fold, len(folds))
	for k, f := range folds {
		if f.Validation.Start >= len(closes) {
			return nil, fmt.Errorf("fold %d: validation starts at %d, only %d rows", f.Index, f.Validation.Start, len(closes))
		}
		cut := closes[f.Validation.Start]
		end := sort.Search(f.Train.End, func(i int) bool {
			return closes[i].Add(horizon).After(cut)
		})
		if end-f.Train.Start < 1 {
			return nil, fmt.Errorf("%w: fold %d has no train rows after purging %s", ErrTooFewRows, f.Index, horizon)
		}
		f.Train.End = end
		out[k] = f
	}
	return out, nil
}
