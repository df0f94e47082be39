package features

import (
	"math"
	"time"
)

const eps = 1e-9

// LogReturns computes r_t = ln(C_t / C_{t-1}) over closes.
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the latest
// window of log returns using the given number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	variance := sampleVariance(logReturns[len(logReturns)-window:])
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYear returns the number of bars per year for an interval.
func BarsPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		interval = time.Minute
	}
	return float64(365*24*time.Hour) / float64(interval)
}

// mean of xs[end-k+1 .. end].
func mean(xs []float64, end, k int) float64 {
	sum := 0.0
	for i := end - k + 1; i <= end; i++ {
		sum += xs[i]
	}
	return sum / float64(k)
}

func maxOf(xs []float64, end, k int) float64 {
	m := xs[end-k+1]
	for i := end - k + 2; i <= end; i++ {
		if xs[i] > m {
			m = xs[i]
		}
	}
	return m
}

func minOf(xs []float64, end, k int) float64 {
	m := xs[end-k+1]
	for i := end - k + 2; i <= end; i++ {
		if xs[i] < m {
			m = xs[i]
		}
	}
	return m
}

// sampleVariance uses n-1 degrees of freedom.
func sampleVariance(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	m := sum / n
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / (n - 1)
}

func stdOf(xs []float64, end, k int) float64 {
	return math.Sqrt(sampleVariance(xs[end-k+1 : end+1]))
}

// ema returns the exponential moving average series seeded with xs[0].
func ema(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
