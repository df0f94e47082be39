package decision

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/services/paper"
	"PaperQuant/internal/services/risk"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fixedScorer returns whatever score is currently set.
type fixedScorer struct {
	score float64
	err   error
	calls int
}

func (s *fixedScorer) Predict(models.FeatureVector) (float64, error) {
	s.calls++
	return s.score, s.err
}
func (s *fixedScorer) FeatureNames() []string { return []string{"x"} }
func (s *fixedScorer) Version() string        { return "fixed" }

var (
	full    = models.FeatureVector{Names: []string{"x"}, Values: []float64{1}}
	partial = models.FeatureVector{Names: []string{"x"}, Partial: true}
)

func bar(symbol string, i int, high, low, close float64) models.Candle {
	return models.Candle{
		Symbol:    symbol,
		OpenTime:  t0.Add(time.Duration(i) * time.Minute),
		CloseTime: t0.Add(time.Duration(i+1) * time.Minute),
		Open:      close, High: high, Low: low, Close: close, Volume: 1,
	}
}

func flatBar(i int, price float64) models.Candle { return bar("KRW-BTC", i, price, price, price) }

type fixture struct {
	eng  *Engine
	book *paper.Portfolio
	acct *models.Account
	sc   *fixedScorer
}

func newFixture(t *testing.T, mutate func(*risk.Config)) *fixture {
	t.Helper()
	rc := risk.Config{
		RiskFraction:         0.01,
		MaxExposureFraction:  1,
		MinTradableUnit:      0.0001,
		MaxDailyLossFraction: 0.5,
		MaxConsecutiveLosses: 3,
		Cooldown:             10 * time.Minute,
	}
	if mutate != nil {
		mutate(&rc)
	}
	re, err := risk.NewEngine(rc)
	require.NoError(t, err)
	book := paper.New(0)
	eng, err := NewEngine(Config{EntryThreshold: 0.6, ExitThreshold: 0.4, TakeProfit: 0.02, StopLoss: 0.01, MaxHolding: 5},
		re, risk.NewGuard(rc), book)
	require.NoError(t, err)
	return &fixture{eng: eng, book: book, acct: models.NewAccount(10_000), sc: &fixedScorer{}}
}

func (f *fixture) step(t *testing.T, c models.Candle, fv models.FeatureVector, score float64) Transition {
	t.Helper()
	f.sc.score = score
	tr, err := f.eng.Process(f.acct, f.sc, c, fv)
	require.NoError(t, err)
	return tr
}

func TestEntryThenTakeProfit(t *testing.T) {
	f := newFixture(t, nil)

	tr := f.step(t, flatBar(0, 100), full, 0.7)
	assert.Equal(t, []models.PositionState{models.StateFlat, models.StateEntering, models.StateInPosition}, tr.Path)
	require.NotNil(t, tr.Entry)
	assert.Equal(t, 100.0, tr.Entry.EntryPrice)
	assert.Equal(t, 99.0, tr.Entry.StopPrice)
	assert.Equal(t, 102.0, tr.Entry.TargetPrice)
	assert.Equal(t, 100.0, tr.Entry.Size)
	assert.Equal(t, 100.0, f.acct.OpenRisk)

	tr = f.step(t, bar("KRW-BTC", 1, 102.5, 100, 101), full, 0.5)
	assert.Equal(t, []models.PositionState{models.StateInPosition, models.StateExiting, models.StateFlat}, tr.Path)
	require.NotNil(t, tr.Exit)
	assert.Equal(t, models.ExitTP, tr.Exit.Reason)
	assert.Equal(t, 102.0, tr.Exit.ExitPrice)
	assert.Equal(t, 200.0, tr.Exit.PnL)
	assert.Equal(t, 10_200.0, f.acct.Equity)
	assert.Zero(t, f.acct.OpenRisk)
	assert.Equal(t, models.StateFlat, f.eng.State("KRW-BTC"))
}

func TestStopWinsWhenBothBarriersTouched(t *testing.T) {
	f := newFixture(t, nil)
	f.step(t, flatBar(0, 100), full, 0.7)

	tr := f.step(t, bar("KRW-BTC", 1, 103, 98, 100), full, 0.9)
	require.NotNil(t, tr.Exit)
	assert.Equal(t, models.ExitSL, tr.Exit.Reason)
	assert.Equal(t, 99.0, tr.Exit.ExitPrice)
	assert.Equal(t, 1, f.acct.ConsecutiveLosses)
	assert.Equal(t, 100.0, f.acct.DailyRealizedLoss)
}

func TestTimeoutExitsAtClose(t *testing.T) {
	f := newFixture(t, nil)
	f.step(t, flatBar(0, 100), full, 0.7)

	for i := 1; i < 5; i++ {
		tr := f.step(t, flatBar(i, 100.5), full, 0.5)
		assert.Nil(t, tr.Exit, "candle %d", i)
	}
	tr := f.step(t, flatBar(5, 100.5), full, 0.5)
	require.NotNil(t, tr.Exit)
	assert.Equal(t, models.ExitTimeout, tr.Exit.Reason)
	assert.Equal(t, 100.5, tr.Exit.ExitPrice)
}

func TestReversalNeedsCompleteVector(t *testing.T) {
	f := newFixture(t, nil)
	f.step(t, flatBar(0, 100), full, 0.7)

	tr := f.step(t, flatBar(1, 100.2), partial, 0.1)
	assert.Nil(t, tr.Exit)
	assert.False(t, tr.Scored)

	tr = f.step(t, flatBar(2, 100.3), full, 0.4)
	require.NotNil(t, tr.Exit)
	assert.Equal(t, models.ExitReversal, tr.Exit.Reason)
	assert.Equal(t, 100.3, tr.Exit.ExitPrice)
}

func TestBarrierExitSkipsScoring(t *testing.T) {
	f := newFixture(t, nil)
	f.step(t, flatBar(0, 100), full, 0.7)
	calls := f.sc.calls

	f.step(t, bar("KRW-BTC", 1, 100, 98, 99), full, 0.1)
	assert.Equal(t, calls, f.sc.calls)
}

func TestNoReentryOnExitCandle(t *testing.T) {
	f := newFixture(t, nil)
	f.step(t, flatBar(0, 100), full, 0.7)

	tr := f.step(t, bar("KRW-BTC", 1, 103, 100, 102.5), full, 0.95)
	require.NotNil(t, tr.Exit)
	assert.Nil(t, tr.Entry)
	_, open := f.book.Position("KRW-BTC")
	assert.False(t, open)

	tr = f.step(t, flatBar(2, 102.5), full, 0.95)
	assert.NotNil(t, tr.Entry)
}

func TestPartialVectorNeverEnters(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.step(t, flatBar(0, 100), partial, 0.99)
	assert.Nil(t, tr.Entry)
	assert.Zero(t, f.sc.calls)
}

func TestBelowThresholdStaysFlat(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.step(t, flatBar(0, 100), full, 0.59)
	assert.Nil(t, tr.Entry)
	assert.True(t, tr.Scored)
	assert.Equal(t, []models.PositionState{models.StateFlat}, tr.Path)
}

func TestCooldownAfterThreeLosses(t *testing.T) {
	f := newFixture(t, nil)
	i := 0
	for n := 0; n < 3; n++ {
		tr := f.step(t, flatBar(i, 100), full, 0.7)
		require.NotNil(t, tr.Entry)
		i++
		tr = f.step(t, bar("KRW-BTC", i, 100, 98, 98.5), full, 0.7)
		require.NotNil(t, tr.Exit)
		i++
	}
	assert.Equal(t, 3, f.acct.ConsecutiveLosses)

	// within 10 minutes of the last loss
	tr := f.step(t, flatBar(i+3, 100), full, 0.9)
	assert.Nil(t, tr.Entry)
	assert.Equal(t, risk.ReasonCooldown, tr.Denied)
	assert.Equal(t, 1, f.eng.Denials()[risk.ReasonCooldown])
	assert.Empty(t, f.book.Positions())

	tr = f.step(t, flatBar(i+10, 100), full, 0.9)
	assert.NotNil(t, tr.Entry)
}

func TestSizingRejectionIsADenial(t *testing.T) {
	f := newFixture(t, func(c *risk.Config) { c.MinNotional = 1_000_000 })
	tr := f.step(t, flatBar(0, 100), full, 0.9)
	assert.Nil(t, tr.Entry)
	assert.Equal(t, risk.ReasonSizeRejected, tr.Denied)

	f.acct.Equity = 0
	tr = f.step(t, flatBar(1, 100), full, 0.9)
	assert.NotEqual(t, risk.ReasonOK, tr.Denied)
	assert.Empty(t, f.book.Positions())
}

func TestScorerErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("boom")
	f.sc.err = boom
	_, err := f.eng.Process(f.acct, f.sc, flatBar(0, 100), full)
	assert.ErrorIs(t, err, boom)
}

func TestRandomWalkInvariants(t *testing.T) {
	f := newFixture(t, func(c *risk.Config) { c.MaxDailyLossFraction = 1 })
	rng := rand.New(rand.NewSource(42))
	symbols := []string{"KRW-BTC", "KRW-ETH"}
	price := map[string]float64{"KRW-BTC": 100, "KRW-ETH": 50}

	exits := 0
	for i := 0; i < 3000; i++ {
		sym := symbols[i%2]
		p := price[sym] * (1 + (rng.Float64()-0.5)*0.02)
		price[sym] = p
		c := bar(sym, i, p*(1+rng.Float64()*0.01), p*(1-rng.Float64()*0.01), p)
		fv := full
		if rng.Intn(10) == 0 {
			fv = partial
		}
		before := f.eng.State(sym)
		tr := f.step(t, c, fv, rng.Float64())

		assert.Equal(t, before, tr.From())
		assert.Equal(t, f.eng.State(sym), tr.To())
		if tr.Exit != nil {
			exits++
			assert.Equal(t, models.StateInPosition, tr.From())
			assert.Equal(t, models.StateFlat, tr.To())
			assert.Nil(t, tr.Entry)
		}
		assert.LessOrEqual(t, len(f.book.Positions()), len(symbols))
	}
	assert.Equal(t, exits, len(f.book.Trades()))
	assert.Positive(t, exits)
}

func TestNewEngineRejectsInvertedThresholds(t *testing.T) {
	re, err := risk.NewEngine(risk.Config{RiskFraction: 0.01, MaxExposureFraction: 1, MinTradableUnit: 1})
	require.NoError(t, err)
	_, err = NewEngine(Config{EntryThreshold: 0.4, ExitThreshold: 0.6, TakeProfit: 0.01, StopLoss: 0.01, MaxHolding: 1},
		re, risk.Guard{}, paper.New(0))
	assert.Error(t, err)
}
