package candles

import (
	"errors"
	"fmt"
	"time"

	"PaperQuant/internal/domain/models"
)

// ErrUnordered is returned when a series is not strictly increasing in open time.
var ErrUnordered = errors.New("series not strictly ordered")

// FillGaps returns series with one synthetic candle inserted for every missing
// interval. The input must belong to a single symbol and be sorted by open time.
func FillGaps(series []models.Candle, interval time.Duration) ([]models.Candle, error) {
	if len(series) == 0 {
		return nil, nil
	}
	out := make([]models.Candle, 0, len(series))
	out = append(out, series[0])
	for i := 1; i < len(series); i++ {
		prev := out[len(out)-1]
		cur := series[i]
		if cur.Symbol != prev.Symbol {
			return nil, fmt.Errorf("mixed symbols %q and %q", prev.Symbol, cur.Symbol)
		}
		if !cur.OpenTime.After(prev.OpenTime) {
			return nil, fmt.Errorf("%w: %s after %s", ErrUnordered, cur.OpenTime, prev.OpenTime)
		}
		for t := prev.CloseTime; t.Before(cur.OpenTime); t = t.Add(interval) {
			out = append(out, synthetic(cur.Symbol, t, interval, prev.Close))
		}
		out = append(out, cur)
	}
	return out, nil
}
