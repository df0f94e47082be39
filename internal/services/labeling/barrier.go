package labeling

import (
	"errors"
	"fmt"

	"PaperQuant/internal/domain/models"
)

// ErrInsufficientFuture is returned when fewer than MaxHolding candles follow the index.
// Callers are expected to label only indices in [0, len-MaxHolding-1]; hitting this is a bug.
var ErrInsufficientFuture = errors.New("insufficient future candles")

// Params are the triple-barrier settings.
type Params struct {
	TakeProfit float64 `yaml:"tp_pct" default:"0.015" validate:"gt=0,lt=1"`
	StopLoss   float64 `yaml:"sl_pct" default:"0.009" validate:"gt=0,lt=1"`
	MaxHolding int     `yaml:"max_holding" default:"60" validate:"gte=1"`
	// DropTimeouts discards entries that hit neither barrier.
	DropTimeouts bool `yaml:"drop_timeouts"`
}

func (p Params) validate() error {
	if p.TakeProfit <= 0 || p.StopLoss <= 0 || p.StopLoss >= 1 {
		return fmt.Errorf("invalid barriers tp=%v sl=%v", p.TakeProfit, p.StopLoss)
	}
	if p.MaxHolding < 1 {
		return fmt.Errorf("max holding must be >= 1, got %d", p.MaxHolding)
	}
	return nil
}

// Labelable reports whether index i has a full forward window in a series of length n.
func Labelable(i, n, maxHolding int) bool {
	return i >= 0 && i+maxHolding <= n-1
}

// Label enters at the close of series[index] and scans the next MaxHolding candles.
// The first candle whose low reaches the stop yields SL, whose high reaches the target
// yields TP; a candle touching both counts as SL. With no touch the outcome is TIMEOUT
// and the realized return is measured at the close of the last scanned candle.
func Label(series []models.Candle, index int, p Params) (models.Label, error) {
	if err := p.validate(); err != nil {
		return models.Label{}, err
	}
	if !Labelable(index, len(series), p.MaxHolding) {
		return models.Label{}, fmt.Errorf("%w: index %d, len %d, max holding %d",
			ErrInsufficientFuture, index, len(series), p.MaxHolding)
	}

	entry := series[index].Close
	target := entry * (1 + p.TakeProfit)
	stop := entry * (1 - p.StopLoss)

	for k := 1; k <= p.MaxHolding; k++ {
		c := series[index+k]
		if c.Low <= stop {
			return models.Label{Outcome: models.OutcomeSL, HoldingLength: k, RealizedReturn: -p.StopLoss}, nil
		}
		if c.High >= target {
			return models.Label{Outcome: models.OutcomeTP, HoldingLength: k, RealizedReturn: p.TakeProfit}, nil
		}
	}
	last := series[index+p.MaxHolding].Close
	return models.Label{
		Outcome:        models.OutcomeTimeout,
		HoldingLength:  p.MaxHolding,
		RealizedReturn: last/entry - 1,
	}, nil
}

// Labeled is a label attached to its series index.
type Labeled struct {
	Index int
	Label models.Label
}

// LabelSeries labels every labelable index in order.
func LabelSeries(series []models.Candle, p Params) ([]Labeled, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n := len(series) - p.MaxHolding
	if n < 0 {
		n = 0
	}
	out := make([]Labeled, 0, n)
	for i := 0; i < n; i++ {
		l, err := Label(series, i, p)
		if err != nil {
			return nil, err
		}
		if p.DropTimeouts && l.Outcome == models.OutcomeTimeout {
			continue
		}
		out = append(out, Labeled{Index: i, Label: l})
	}
	return out, nil
}
