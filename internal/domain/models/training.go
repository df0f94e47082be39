package models

// Outcome is which barrier a labeled entry touched first.
type Outcome string

const (
	OutcomeTP      Outcome = "TP"
	OutcomeSL      Outcome = "SL"
	OutcomeTimeout Outcome = "TIMEOUT"
)

// Label is the triple-barrier outcome for an entry at some index.
type Label struct {
	Outcome        Outcome
	HoldingLength  int
	RealizedReturn float64
}

// Target is the binary training target: 1 when take-profit was hit first.
func (l Label) Target() float64 {
	if l.Outcome == OutcomeTP {
		return 1
	}
	return 0
}

// Range is a half-open index range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

// Fold is one walk-forward split; every train index precedes every validation index.
type Fold struct {
	Index      int
	Train      Range
	Validation Range
}

// SeriesRow is one row of a persisted series: a candle, optionally its
// feature vector and its label.
type SeriesRow struct {
	Candle   Candle
	Features *FeatureVector
	Label    *Label
}
