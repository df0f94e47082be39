package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/domain/service"
	"PaperQuant/internal/services/decision"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/labeling"
	"PaperQuant/internal/services/risk"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/internal/services/walkforward"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/metrics"
)

func TestCollector_PagesBackwardAndFillsGaps(t *testing.T) {
	until := minute(1440)
	var series []models.Candle
	for i := -100; i < 1440; i++ {
		if i == 500 {
			continue
		}
		series = append(series, flat("KRW-BTC", i, 100))
	}
	src := &pagedSource{series: series}
	store := &memCandleStore{}

	got, err := NewCollector(src, store, logger.Nop()).Collect(context.Background(), "KRW-BTC", drepo.Interval1m, 1, until)
	require.NoError(t, err)

	// 1440 real candles span 1441 minutes once the hole is filled
	require.Len(t, got, 1441)
	assert.Equal(t, until, got[len(got)-1].CloseTime)
	assert.Equal(t, minute(-1), got[0].OpenTime)
	synthetic := 0
	for i, c := range got {
		if i > 0 {
			assert.Equal(t, got[i-1].CloseTime, c.OpenTime)
		}
		if c.Synthetic {
			synthetic++
			assert.Equal(t, minute(500), c.OpenTime)
		}
	}
	assert.Equal(t, 1, synthetic)
	assert.Len(t, store.stored(), 1441)
	assert.Greater(t, src.calls, 1)
}

func TestCollector_RejectsZeroDays(t *testing.T) {
	_, err := NewCollector(&pagedSource{}, nil, logger.Nop()).Collect(context.Background(), "KRW-BTC", drepo.Interval1m, 0, t0)
	assert.Error(t, err)
}

func TestFeaturize_PartialUntilWindow(t *testing.T) {
	var series []models.Candle
	for i := 0; i < 125; i++ {
		series = append(series, flat("KRW-BTC", i, 100+float64(i%3)))
	}
	rows, err := Featurize(series, time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 125)
	assert.True(t, rows[119].Features.Partial)
	assert.False(t, rows[120].Features.Partial)
	assert.Equal(t, series[124], rows[124].Candle)
}

func TestLabelRows_HundredCandles(t *testing.T) {
	var rows []models.SeriesRow
	for i := 0; i < 100; i++ {
		c := flat("KRW-BTC", i, 100)
		if i == 10 {
			c.High = 101.6
		}
		rows = append(rows, models.SeriesRow{Candle: c, Features: &models.FeatureVector{Names: []string{"x"}, Values: []float64{1}}})
	}
	p := labeling.Params{TakeProfit: 0.015, StopLoss: 0.009, MaxHolding: 60}

	out, err := LabelRows(rows, p)
	require.NoError(t, err)
	require.Len(t, out, 40)

	first := out[0].Label
	assert.Equal(t, models.OutcomeTP, first.Outcome)
	assert.Equal(t, 10, first.HoldingLength)
	assert.InDelta(t, 0.015, first.RealizedReturn, 1e-12)

	// the entry on the spike candle itself never sees it again
	assert.Equal(t, models.OutcomeTimeout, out[10].Label.Outcome)
	assert.Equal(t, 60, out[10].Label.HoldingLength)
	assert.InDelta(t, 0, out[10].Label.RealizedReturn, 1e-12)
	assert.Equal(t, minute(39), out[39].Candle.OpenTime)
}

func TestLabelRows_MultiSymbolKeepsOrder(t *testing.T) {
	full := &models.FeatureVector{Names: []string{"x"}, Values: []float64{1}}
	part := &models.FeatureVector{Names: []string{"x"}, Partial: true}
	var rows []models.SeriesRow
	for i := 0; i < 5; i++ {
		rows = append(rows,
			models.SeriesRow{Candle: flat("KRW-BTC", i, 100), Features: full},
			models.SeriesRow{Candle: flat("KRW-ETH", i, 10), Features: part},
		)
	}
	rows[2].Candle.Low = 90 // BTC minute 1 stops out the BTC entry at minute 0

	out, err := LabelRows(rows, labeling.Params{TakeProfit: 0.05, StopLoss: 0.05, MaxHolding: 2})
	require.NoError(t, err)

	// ETH rows are partial, BTC minutes 0..2 are labelable
	require.Len(t, out, 3)
	for i, r := range out {
		assert.Equal(t, "KRW-BTC", r.Candle.Symbol)
		assert.Equal(t, minute(i), r.Candle.OpenTime)
	}
	assert.Equal(t, models.OutcomeSL, out[0].Label.Outcome)
	assert.Equal(t, models.OutcomeTimeout, out[1].Label.Outcome)
}

func TestTrainer_RejectsUnlabeledRows(t *testing.T) {
	rows := []models.SeriesRow{{Candle: flat("KRW-BTC", 0, 100)}}
	_, err := NewTrainer(TrainerConfig{Folds: 2}, nil, nil, logger.Nop()).Train(context.Background(), rows)
	assert.Error(t, err)
}

func TestTrainer_PurgesLabelWindowsAcrossSymbols(t *testing.T) {
	names := features.Names()
	var rows []models.SeriesRow
	for i := 0; i < 400; i++ {
		for k, sym := range []string{"KRW-BTC", "KRW-ETH"} {
			c := flat(sym, i, 100)
			fv := models.FeatureVector{Symbol: sym, Timestamp: c.CloseTime, Names: names, Values: make([]float64, len(names))}
			lb := models.Label{Outcome: models.OutcomeSL}
			if (i+k)%2 == 0 {
				lb.Outcome = models.OutcomeTP
			}
			rows = append(rows, models.SeriesRow{Candle: c, Features: &fv, Label: &lb})
		}
	}

	var fits atomic.Int32
	fit := func(_ context.Context, tr []models.FeatureVector, _ []models.Label) (service.Scorer, error) {
		fits.Add(1)
		return constScorer(0.5), nil
	}
	metric := func([]float64, []float64) float64 { return 0.5 }
	horizon := 60 * time.Minute

	champ, err := NewTrainer(TrainerConfig{Folds: 3, Embargo: 60, Mode: walkforward.ModeBestFold, Workers: 1}, fit, metric, logger.Nop(),
		WithLabelHorizon(horizon)).Train(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, champ.Folds, 3)
	assert.Equal(t, int32(3), fits.Load())
	for _, f := range champ.Folds {
		lastTrain := rows[f.Fold.Train.End-1].Candle.CloseTime
		firstValidation := rows[f.Fold.Validation.Start].Candle.CloseTime
		assert.False(t, lastTrain.Add(horizon).After(firstValidation), "fold %d trains on labels that see validation", f.Fold.Index)
	}
}

func TestTrainer_RejectsUnsortedRowsWithHorizon(t *testing.T) {
	names := features.Names()
	var rows []models.SeriesRow
	for i := 0; i < 40; i++ {
		c := flat("KRW-BTC", 39-i, 100)
		fv := models.FeatureVector{Names: names, Values: make([]float64, len(names))}
		rows = append(rows, models.SeriesRow{Candle: c, Features: &fv, Label: &models.Label{Outcome: models.OutcomeTP}})
	}
	fit := func(context.Context, []models.FeatureVector, []models.Label) (service.Scorer, error) {
		return constScorer(0.5), nil
	}
	_, err := NewTrainer(TrainerConfig{Folds: 2, Mode: walkforward.ModeBestFold, Workers: 1}, fit, nil, logger.Nop(),
		WithLabelHorizon(time.Minute)).Train(context.Background(), rows)
	assert.ErrorContains(t, err, "out of order")
}

func replayConfig() (decision.Config, risk.Config) {
	return decision.Config{EntryThreshold: 0.6, ExitThreshold: 0.4, TakeProfit: 0.015, StopLoss: 0.009, MaxHolding: 60},
		risk.Config{
			StartingEquity:       1_000_000,
			RiskFraction:         0.003,
			MaxExposureFraction:  0.1,
			MinTradableUnit:      0.0001,
			MinNotional:          5000,
			MaxDailyLossFraction: 0.03,
			MaxConsecutiveLosses: 5,
			Cooldown:             time.Hour,
		}
}

func TestReplayer_TakesProfit(t *testing.T) {
	var series []models.Candle
	for i := 0; i < 130; i++ {
		c := flat("KRW-BTC", i, 100)
		if i == 125 {
			c.High = 102
		}
		series = append(series, c)
	}
	dc, rc := replayConfig()
	n := 0
	r := NewReplayer(dc, rc, 0, time.Minute, logger.Nop(), metrics.NewNop()).WithTradeIDs(func() string {
		n++
		return fmt.Sprintf("t%d", n)
	})

	res, err := r.Replay(context.Background(), series, constScorer(0.9))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, "t1", tr.ID)
	assert.Equal(t, models.ExitTP, tr.Reason)
	assert.Equal(t, minute(121), tr.EntryTime)
	assert.InDelta(t, 101.5, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 1000, tr.Size, 1e-9)
	assert.InDelta(t, 1500, tr.PnL, 1e-6)
	assert.InDelta(t, 1_001_500, res.Account.Equity, 1e-6)
	assert.Equal(t, 1, res.Stats.Trades)
	// re-entered on the next candle and still open
	require.Len(t, res.Open, 1)
	assert.Equal(t, minute(127), res.Open[0].EntryTime)
}

func TestReplayer_RejectsScorerWithOtherFeatures(t *testing.T) {
	dc, rc := replayConfig()
	_, err := NewReplayer(dc, rc, 0, time.Minute, logger.Nop(), metrics.NewNop()).
		Replay(context.Background(), []models.Candle{flat("KRW-BTC", 0, 100)}, foreignScorer{})
	assert.ErrorIs(t, err, scoring.ErrFeatureMismatch)
}

func TestReplayer_BelowThresholdNeverTrades(t *testing.T) {
	var series []models.Candle
	for i := 0; i < 130; i++ {
		series = append(series, flat("KRW-BTC", i, 100))
	}
	dc, rc := replayConfig()
	res, err := NewReplayer(dc, rc, 0.0005, time.Minute, logger.Nop(), metrics.NewNop()).Replay(context.Background(), series, constScorer(0.5))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Open)
	assert.Equal(t, rc.StartingEquity, res.Account.Equity)
}
