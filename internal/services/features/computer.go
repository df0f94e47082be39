package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"PaperQuant/internal/domain/models"
)

// ErrOutOfOrder is returned when a candle does not close after the previous one.
var ErrOutOfOrder = errors.New("candle out of order")

// Window is the longest lookback: ma_slope_120 needs 121 closes.
const Window = 121

var maWindows = []int{5, 10, 20, 60, 120}

var names = buildNames()

func buildNames() []string {
	var out []string
	for _, w := range maWindows {
		out = append(out, fmt.Sprintf("ma_%d", w), fmt.Sprintf("ma_slope_%d", w))
	}
	return append(out,
		"ma_alignment", "ma_alignment_score", "dist_ma20", "dist_ma60",
		"pullback_depth20", "range_pos20", "ret_1", "ret_3", "ret_10",
		"rebound_strength3", "rebound_strength10",
		"breakout_up20", "breakout_down20", "range_width20", "range_width20_chg",
		"volatility20", "volatility20_chg",
		"vol_ma20", "vol_ma60", "vol_ratio20", "vol_ratio60", "vol_z20",
		"rsi14", "macd", "macd_signal", "macd_hist",
		"log_ret_1", "rv20",
	)
}

// Names returns the fixed, ordered feature names.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Computer keeps the last Window candles per symbol and derives a feature
// vector at every candle close. Every value is a pure function of that buffer.
type Computer struct {
	barsPerYear float64
	rings       map[string]*Ring[models.Candle]

	// scratch
	c, h, l, v []float64
}

// NewComputer creates a computer for candles of the given interval.
func NewComputer(interval time.Duration) *Computer {
	return &Computer{
		barsPerYear: BarsPerYear(interval),
		rings:       make(map[string]*Ring[models.Candle]),
		c:           make([]float64, Window),
		h:           make([]float64, Window),
		l:           make([]float64, Window),
		v:           make([]float64, Window),
	}
}

// Update appends a closed candle and returns the vector as of its close.
func (fc *Computer) Update(cd models.Candle) (models.FeatureVector, error) {
	r, ok := fc.rings[cd.Symbol]
	if !ok {
		r = NewRing[models.Candle](Window)
		fc.rings[cd.Symbol] = r
	}
	if last, ok := r.Last(); ok && !cd.CloseTime.After(last.CloseTime) {
		return models.FeatureVector{}, fmt.Errorf("%w: %s close %s not after %s",
			ErrOutOfOrder, cd.Symbol, cd.CloseTime, last.CloseTime)
	}
	r.Push(cd)

	fv := models.FeatureVector{Symbol: cd.Symbol, Timestamp: cd.CloseTime, Names: names}
	if !r.Full() {
		fv.Partial = true
		return fv, nil
	}
	for i := 0; i < Window; i++ {
		x := r.At(i)
		fc.c[i], fc.h[i], fc.l[i], fc.v[i] = x.Close, x.High, x.Low, x.Volume
	}
	fv.Values = fc.compute()
	return fv, nil
}

// Buffered returns how many candles are held for symbol.
func (fc *Computer) Buffered(symbol string) int {
	if r, ok := fc.rings[symbol]; ok {
		return r.Len()
	}
	return 0
}

func (fc *Computer) compute() []float64 {
	c, h, l, v := fc.c, fc.h, fc.l, fc.v
	L := Window - 1
	out := make([]float64, 0, len(names))

	ma := make(map[int]float64, len(maWindows))
	for _, w := range maWindows {
		cur := mean(c, L, w)
		ma[w] = cur
		out = append(out, cur, cur-mean(c, L-1, w))
	}
	out = append(out,
		boolf(ma[20] > ma[60] && ma[60] > ma[120]),
		(boolf(ma[20] > ma[60])+boolf(ma[60] > ma[120]))/2,
		(c[L]-ma[20])/ma[20],
		(c[L]-ma[60])/ma[60],
	)

	hi20, lo20 := maxOf(h, L, 20), minOf(l, L, 20)
	ret := func(k int) float64 { return c[L]/c[L-k] - 1 }
	out = append(out,
		(hi20-c[L])/hi20,
		(c[L]-lo20)/(hi20-lo20+eps),
		ret(1), ret(3), ret(10),
		ret(3), ret(10),
	)

	width := func(end int) float64 { return (maxOf(h, end, 20) - minOf(l, end, 20)) / c[end] }
	vol20 := func(end int) float64 {
		rs := make([]float64, 20)
		for i := range rs {
			j := end - 19 + i
			rs[i] = c[j]/c[j-1] - 1
		}
		return math.Sqrt(sampleVariance(rs))
	}
	out = append(out,
		boolf(c[L] > maxOf(h, L-1, 20)),
		boolf(c[L] < minOf(l, L-1, 20)),
		width(L), width(L)-width(L-1),
		vol20(L), vol20(L)-vol20(L-1),
	)

	vma20, vma60 := mean(v, L, 20), mean(v, L, 60)
	out = append(out,
		vma20, vma60,
		v[L]/(vma20+eps),
		v[L]/(vma60+eps),
		(v[L]-vma20)/(stdOf(v, L, 20)+eps),
	)

	up, down := 0.0, 0.0
	for i := L - 13; i <= L; i++ {
		d := c[i] - c[i-1]
		if d > 0 {
			up += d
		} else {
			down -= d
		}
	}
	rs := (up / 14) / (down/14 + eps)
	e12, e26 := ema(c, 12), ema(c, 26)
	macd := make([]float64, Window)
	for i := range macd {
		macd[i] = e12[i] - e26[i]
	}
	sig := ema(macd, 9)
	out = append(out, 100-100/(1+rs), macd[L], sig[L], macd[L]-sig[L])

	lr := LogReturns(c)
	out = append(out, lr[len(lr)-1], RealizedVolatility(lr, 20, fc.barsPerYear))
	return out
}

// ComputeSeries runs a fresh computer over a single-symbol series, returning one
// vector per candle. Offline featurization uses this so training and live share one code path.
func ComputeSeries(series []models.Candle, interval time.Duration) ([]models.FeatureVector, error) {
	fc := NewComputer(interval)
	out := make([]models.FeatureVector, 0, len(series))
	for i, cd := range series {
		fv, err := fc.Update(cd)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		out = append(out, fv)
	}
	return out, nil
}
