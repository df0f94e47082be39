package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, close float64) models.Candle {
	return models.Candle{
		Symbol:    "KRW-ETH",
		OpenTime:  t0.Add(time.Duration(i) * time.Minute),
		CloseTime: t0.Add(time.Duration(i+1) * time.Minute),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func value(t *testing.T, fv models.FeatureVector, name string) float64 {
	t.Helper()
	v, ok := fv.Value(name)
	require.True(t, ok, name)
	return v
}

func TestPartialUntilWindowFilled(t *testing.T) {
	fc := NewComputer(time.Minute)
	for i := 0; i < Window-1; i++ {
		fv, err := fc.Update(candle(i, 100))
		require.NoError(t, err)
		assert.True(t, fv.Partial)
		assert.Nil(t, fv.Values)
	}
	fv, err := fc.Update(candle(Window-1, 100))
	require.NoError(t, err)
	assert.False(t, fv.Partial)
	assert.Len(t, fv.Values, len(Names()))
	assert.Equal(t, Window, fc.Buffered("KRW-ETH"))
}

func TestRejectsOutOfOrderCandles(t *testing.T) {
	fc := NewComputer(time.Minute)
	_, err := fc.Update(candle(5, 100))
	require.NoError(t, err)
	_, err = fc.Update(candle(5, 100))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = fc.Update(candle(3, 100))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 1, fc.Buffered("KRW-ETH"))
}

func TestLinearTrendFeatures(t *testing.T) {
	fc := NewComputer(time.Minute)
	var fv models.FeatureVector
	for i := 0; i < 130; i++ {
		var err error
		fv, err = fc.Update(candle(i, 100+float64(i)))
		require.NoError(t, err)
	}
	last := 229.0
	assert.InDelta(t, last-2, value(t, fv, "ma_5"), 1e-9)
	assert.InDelta(t, 1, value(t, fv, "ma_slope_5"), 1e-9)
	assert.InDelta(t, 1, value(t, fv, "ma_slope_120"), 1e-9)
	assert.Equal(t, 1.0, value(t, fv, "ma_alignment"))
	assert.Equal(t, 1.0, value(t, fv, "ma_alignment_score"))
	assert.InDelta(t, last/(last-1)-1, value(t, fv, "ret_1"), 1e-12)
	assert.Equal(t, 1.0, value(t, fv, "breakout_up20"))
	assert.Equal(t, 0.0, value(t, fv, "breakout_down20"))
	assert.InDelta(t, 0, value(t, fv, "pullback_depth20"), 1e-12)
	assert.InDelta(t, 100, value(t, fv, "rsi14"), 1e-6)
	assert.Positive(t, value(t, fv, "macd"))
	assert.InDelta(t, 1, value(t, fv, "vol_ratio20"), 1e-6)
}

func TestFlatSeriesFeatures(t *testing.T) {
	fc := NewComputer(time.Minute)
	var fv models.FeatureVector
	for i := 0; i < Window; i++ {
		var err error
		fv, err = fc.Update(candle(i, 50))
		require.NoError(t, err)
	}
	assert.Equal(t, 50.0, value(t, fv, "ma_120"))
	assert.Zero(t, value(t, fv, "ma_slope_20"))
	assert.Zero(t, value(t, fv, "ma_alignment"))
	assert.InDelta(t, 0, value(t, fv, "macd"), 1e-9)
	assert.Zero(t, value(t, fv, "volatility20"))
	assert.Zero(t, value(t, fv, "rv20"))
}

func TestVectorDependsOnlyOnBuffer(t *testing.T) {
	series := make([]models.Candle, 300)
	for i := range series {
		series[i] = candle(i, 100+10*float64(i%7)+float64(i)/3)
		series[i].Volume = float64(1 + i%5)
	}

	full := NewComputer(time.Minute)
	var a models.FeatureVector
	for _, cd := range series {
		var err error
		a, err = full.Update(cd)
		require.NoError(t, err)
	}

	short := NewComputer(time.Minute)
	var b models.FeatureVector
	for _, cd := range series[len(series)-Window:] {
		var err error
		b, err = short.Update(cd)
		require.NoError(t, err)
	}
	assert.Equal(t, a.Values, b.Values)
}

func TestComputeSeriesMatchesIncremental(t *testing.T) {
	series := make([]models.Candle, 150)
	for i := range series {
		series[i] = candle(i, 100+float64(i%11))
	}
	vecs, err := ComputeSeries(series, time.Minute)
	require.NoError(t, err)
	require.Len(t, vecs, len(series))

	fc := NewComputer(time.Minute)
	for i, cd := range series {
		fv, err := fc.Update(cd)
		require.NoError(t, err)
		assert.Equal(t, fv.Values, vecs[i].Values)
		assert.Equal(t, fv.Partial, vecs[i].Partial)
	}
}

func TestRing(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.True(t, r.Full())
	assert.Equal(t, []int{3, 4, 5}, []int{r.At(0), r.At(1), r.At(2)})
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 5, last)
}
