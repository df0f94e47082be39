package models

import "time"

// Side is the aggressor side of a tick.
type Side string

const (
	SideBuy  Side = "BID"
	SideSell Side = "ASK"
)

// Tick is a single executed trade reported by the exchange feed.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Side      Side      `json:"side,omitempty"`
	Timestamp time.Time `json:"timestamp"` // exchange time, UTC
}

// Candle is an OHLCV summary over [OpenTime, CloseTime).
// Synthetic candles fill intervals with no trades: OHLC equals the prior close, zero volume.
type Candle struct {
	Symbol     string
	OpenTime   time.Time
	CloseTime  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int
	Synthetic  bool
}

// Valid reports whether the candle satisfies low <= open,close <= high and non-negative volume.
func (c Candle) Valid() bool {
	if c.Volume < 0 || c.TradeCount < 0 {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close || c.High < c.Open || c.High < c.Close {
		return false
	}
	return c.CloseTime.After(c.OpenTime)
}

// FeatureVector is computed at a candle close. Partial is true while the
// history is shorter than the longest lookback; Values is nil in that case.
type FeatureVector struct {
	Symbol    string
	Timestamp time.Time
	Names     []string
	Values    []float64
	Partial   bool
}

// Value returns the named feature, false if absent.
func (f FeatureVector) Value(name string) (float64, bool) {
	for i, n := range f.Names {
		if n == name && i < len(f.Values) {
			return f.Values[i], true
		}
	}
	return 0, false
}
