package candles

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func tick(sec int, price, qty float64) models.Tick {
	return models.Tick{Symbol: "KRW-BTC", Price: price, Quantity: qty, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func newAgg(t *testing.T, tol time.Duration) *Aggregator {
	t.Helper()
	a, err := New(time.Minute, tol)
	require.NoError(t, err)
	return a
}

func TestIngestBuildsOHLCV(t *testing.T) {
	a := newAgg(t, 0)
	for _, tk := range []models.Tick{tick(5, 100, 1), tick(30, 105, 2), tick(50, 99, 1)} {
		out, err := a.Ingest(tk)
		require.NoError(t, err)
		assert.Empty(t, out)
	}

	out, err := a.Ingest(tick(70, 101, 1))
	require.NoError(t, err)
	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, t0, c.OpenTime)
	assert.Equal(t, t0.Add(time.Minute), c.CloseTime)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 99.0, c.Low)
	assert.Equal(t, 99.0, c.Close)
	assert.Equal(t, 4.0, c.Volume)
	assert.Equal(t, 3, c.TradeCount)
	assert.False(t, c.Synthetic)
	assert.True(t, c.Valid())
}

func TestIngestFillsGapsWithSyntheticCandles(t *testing.T) {
	a := newAgg(t, 0)
	_, err := a.Ingest(tick(10, 100, 1))
	require.NoError(t, err)

	// three empty minutes between the two ticks
	out, err := a.Ingest(tick(4*60+10, 102, 1))
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.False(t, out[0].Synthetic)
	for i, c := range out[1:] {
		assert.True(t, c.Synthetic)
		assert.Equal(t, t0.Add(time.Duration(i+1)*time.Minute), c.OpenTime)
		assert.Equal(t, 100.0, c.Open)
		assert.Equal(t, 100.0, c.High)
		assert.Equal(t, 100.0, c.Low)
		assert.Equal(t, 100.0, c.Close)
		assert.Zero(t, c.Volume)
		assert.Zero(t, c.TradeCount)
	}
	for i := 1; i < len(out); i++ {
		assert.Equal(t, out[i-1].CloseTime, out[i].OpenTime)
	}
}

func TestIngestWithoutGapFill(t *testing.T) {
	a, err := New(time.Minute, 0, WithGapFill(false))
	require.NoError(t, err)
	_, err = a.Ingest(tick(10, 100, 1))
	require.NoError(t, err)
	out, err := a.Ingest(tick(4*60+10, 102, 1))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestLateTickForClosedCandleIsDropped(t *testing.T) {
	a := newAgg(t, 5*time.Second)
	_, err := a.Ingest(tick(10, 100, 1))
	require.NoError(t, err)
	out, err := a.Ingest(tick(65, 101, 1))
	require.NoError(t, err)
	require.Len(t, out, 1)

	out, err = a.Ingest(tick(40, 500, 3))
	assert.ErrorIs(t, err, ErrLateTick)
	assert.Empty(t, out)
	assert.Equal(t, Stats{Anomalies: 1, DroppedVolume: 3}, a.Stats("KRW-BTC"))

	open, ok := a.Open("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, 101.0, open.High)
}

func TestInBucketToleranceKeepsCloseOfNewestTick(t *testing.T) {
	a := newAgg(t, 2*time.Second)
	_, err := a.Ingest(tick(30, 100, 1))
	require.NoError(t, err)

	_, err = a.Ingest(tick(29, 110, 1))
	require.NoError(t, err)
	open, _ := a.Open("KRW-BTC")
	assert.Equal(t, 110.0, open.High)
	assert.Equal(t, 100.0, open.Close)
	assert.Equal(t, 2, open.TradeCount)

	_, err = a.Ingest(tick(20, 90, 1))
	assert.ErrorIs(t, err, ErrLateTick)
	open, _ = a.Open("KRW-BTC")
	assert.Equal(t, 100.0, open.Low)
}

func TestInvalidTickRejected(t *testing.T) {
	a := newAgg(t, 0)
	_, err := a.Ingest(models.Tick{Symbol: "KRW-BTC", Price: 0, Quantity: 1, Timestamp: t0})
	assert.ErrorIs(t, err, ErrInvalidTick)
	_, err = a.Ingest(models.Tick{Price: 1, Quantity: 1, Timestamp: t0})
	assert.ErrorIs(t, err, ErrInvalidTick)
}

func TestVolumeIsConserved(t *testing.T) {
	a := newAgg(t, 3*time.Second)
	rng := rand.New(rand.NewSource(7))

	var total, emitted float64
	sec := 0
	for i := 0; i < 2000; i++ {
		sec += rng.Intn(20)
		at := sec
		if rng.Intn(10) == 0 {
			at -= rng.Intn(90) // out of order
		}
		q := float64(rng.Intn(100)) / 10
		total += q
		out, err := a.Ingest(tick(at, 100+rng.Float64(), q))
		if err != nil {
			require.ErrorIs(t, err, ErrLateTick)
		}
		for _, c := range out {
			emitted += c.Volume
			require.True(t, c.Valid())
		}
	}

	for _, c := range a.FlushAll(t0.Add(time.Duration(sec+120) * time.Second)) {
		emitted += c.Volume
	}
	_, open := a.Open("KRW-BTC")
	assert.False(t, open)
	st := a.Stats("KRW-BTC")
	assert.InDelta(t, total, emitted+st.DroppedVolume, 1e-6)
	assert.Positive(t, st.Anomalies)
}

func TestBoundaryJitterWithinToleranceLandsInPreviousCandle(t *testing.T) {
	a := newAgg(t, 2*time.Second)
	_, err := a.Ingest(tick(30, 100, 1))
	require.NoError(t, err)

	// first tick of the next minute holds the previous candle back
	out, err := a.Ingest(tick(60, 103, 1))
	require.NoError(t, err)
	assert.Empty(t, out)

	// 200ms late across the boundary
	late := models.Tick{Symbol: "KRW-BTC", Price: 95, Quantity: 2, Timestamp: t0.Add(59*time.Second + 800*time.Millisecond)}
	out, err = a.Ingest(late)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = a.Ingest(tick(62, 104, 1))
	require.NoError(t, err)
	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, t0, c.OpenTime)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 100.0, c.Close, "a late tick never moves close")
	assert.Equal(t, 3.0, c.Volume)
	assert.Equal(t, 2, c.TradeCount)

	// the candle is closed now, so a tick for it is dropped
	_, err = a.Ingest(tick(59, 90, 1))
	assert.ErrorIs(t, err, ErrLateTick)
	open, _ := a.Open("KRW-BTC")
	assert.Equal(t, 2.0, open.Volume)
}

func TestBoundaryJitterBeyondToleranceIsDropped(t *testing.T) {
	a := newAgg(t, 2*time.Second)
	_, err := a.Ingest(tick(30, 100, 1))
	require.NoError(t, err)
	_, err = a.Ingest(tick(61, 103, 1))
	require.NoError(t, err)

	_, err = a.Ingest(tick(58, 95, 1))
	assert.ErrorIs(t, err, ErrLateTick)
	assert.Equal(t, 1, a.Stats("KRW-BTC").Anomalies)

	out := a.Flush("KRW-BTC", t0.Add(time.Minute))
	require.Len(t, out, 1)
	assert.Equal(t, 100.0, out[0].Low)
}

func TestNewRejectsToleranceOfWholeInterval(t *testing.T) {
	_, err := New(time.Minute, time.Minute)
	assert.Error(t, err)
	_, err = New(time.Minute, -time.Second)
	assert.Error(t, err)
}

func TestFlushClosesElapsedCandle(t *testing.T) {
	a := newAgg(t, 0)
	_, err := a.Ingest(tick(10, 100, 1))
	require.NoError(t, err)

	assert.Empty(t, a.Flush("KRW-BTC", t0.Add(59*time.Second)))

	out := a.Flush("KRW-BTC", t0.Add(3*time.Minute))
	require.Len(t, out, 3)
	assert.False(t, out[0].Synthetic)
	assert.True(t, out[1].Synthetic)
	assert.True(t, out[2].Synthetic)
	assert.Equal(t, t0.Add(3*time.Minute), out[2].CloseTime)

	_, err = a.Ingest(tick(2*60+30, 100, 1))
	assert.ErrorIs(t, err, ErrLateTick)
}

func TestResetDiscardsPartialCandle(t *testing.T) {
	a := newAgg(t, 0)
	_, err := a.Ingest(tick(10, 100, 1))
	require.NoError(t, err)
	_, err = a.Ingest(tick(70, 100, 1))
	require.NoError(t, err)

	assert.Empty(t, a.Reset("KRW-BTC"))
	_, ok := a.Open("KRW-BTC")
	assert.False(t, ok)

	// rest of the discarded minute is ignored
	_, err = a.Ingest(tick(100, 100, 1))
	assert.ErrorIs(t, err, ErrLateTick)

	out, err := a.Ingest(tick(130, 104, 2))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Synthetic)
	assert.Equal(t, t0.Add(time.Minute), out[0].OpenTime)

	open, ok := a.Open("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, 104.0, open.Open)
	assert.Equal(t, 2.0, open.Volume)
}

func TestResetEmitsHeldCandle(t *testing.T) {
	a := newAgg(t, 2*time.Second)
	_, err := a.Ingest(tick(10, 100, 1))
	require.NoError(t, err)
	_, err = a.Ingest(tick(61, 101, 1))
	require.NoError(t, err)

	out := a.ResetAll()
	require.Len(t, out, 1)
	assert.Equal(t, t0, out[0].OpenTime)
	_, ok := a.Open("KRW-BTC")
	assert.False(t, ok)
	assert.Equal(t, 1.0, a.Stats("KRW-BTC").DroppedVolume)
}

func TestClosedBarPanicsOnApply(t *testing.T) {
	b := newBar(tick(0, 100, 1), t0, time.Minute)
	b.close()
	assert.Panics(t, func() { b.apply(tick(1, 101, 1), true) })
}

func TestFillGaps(t *testing.T) {
	series := []models.Candle{
		{Symbol: "KRW-BTC", OpenTime: t0, CloseTime: t0.Add(time.Minute), Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Symbol: "KRW-BTC", OpenTime: t0.Add(3 * time.Minute), CloseTime: t0.Add(4 * time.Minute), Open: 2, High: 3, Low: 2, Close: 3, Volume: 1},
	}
	out, err := FillGaps(series, time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.True(t, out[1].Synthetic)
	assert.True(t, out[2].Synthetic)
	assert.Equal(t, 2.0, out[2].Close)

	_, err = FillGaps([]models.Candle{series[1], series[0]}, time.Minute)
	assert.ErrorIs(t, err, ErrUnordered)
}
