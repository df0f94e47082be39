package risk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		StartingEquity:       1_000_000,
		RiskFraction:         0.01,
		MaxExposureFraction:  0.5,
		MinTradableUnit:      0.0001,
		MinNotional:          5000,
		MaxDailyLossFraction: 0.03,
		MaxConsecutiveLosses: 3,
		Cooldown:             time.Hour,
	}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func TestSizeForRiskBudget(t *testing.T) {
	e := newEngine(t, testConfig())
	acct := models.NewAccount(1_000_000)

	// 10000 risk / 40 per unit
	size, err := e.SizeFor(1000, 960, acct)
	require.NoError(t, err)
	assert.Equal(t, 250.0, size)
}

func TestSizeForCapsExposure(t *testing.T) {
	e := newEngine(t, testConfig())
	acct := models.NewAccount(1_000_000)

	size, err := e.SizeFor(100_000, 99_990, acct)
	require.NoError(t, err)
	assert.InDelta(t, 5, size, 1e-12)
	assert.LessOrEqual(t, size*100_000, acct.Equity*0.5)
}

func TestSizeForRoundsDownToUnit(t *testing.T) {
	cfg := testConfig()
	cfg.MinTradableUnit = 0.01
	e := newEngine(t, cfg)
	acct := models.NewAccount(1_000_000)

	size, err := e.SizeFor(3000, 2970, acct) // capped at 166.666..
	require.NoError(t, err)
	assert.Equal(t, 166.66, size)
}

func TestSizeForRejections(t *testing.T) {
	e := newEngine(t, testConfig())

	_, err := e.SizeFor(100, 99, models.NewAccount(0))
	assert.ErrorIs(t, err, ErrNonPositiveEquity)
	_, err = e.SizeFor(100, 99, &models.Account{Equity: -5})
	assert.ErrorIs(t, err, ErrNonPositiveEquity)

	_, err = e.SizeFor(100, 100, models.NewAccount(1_000_000))
	assert.ErrorIs(t, err, ErrSizeRejected)

	cfg := testConfig()
	cfg.MinTradableUnit = 1
	coarse := newEngine(t, cfg)
	_, err = coarse.SizeFor(50_000_000, 49_000_000, models.NewAccount(1_000_000))
	assert.ErrorIs(t, err, ErrSizeRejected)

	_, err = e.SizeFor(100, 99, models.NewAccount(6000))
	assert.ErrorIs(t, err, ErrSizeRejected)
}

func TestAcceptedSizesRespectExposureCap(t *testing.T) {
	cfg := testConfig()
	cfg.MinNotional = 0
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		cfg.MaxExposureFraction = 0.01 + rng.Float64()*0.99
		cfg.RiskFraction = 0.001 + rng.Float64()*0.05
		e := newEngine(t, cfg)
		acct := models.NewAccount(1000 + rng.Float64()*1e7)
		entry := 1 + rng.Float64()*1e5
		stop := entry * (1 - 0.0001 - rng.Float64()*0.2)

		size, err := e.SizeFor(entry, stop, acct)
		if err != nil {
			assert.ErrorIs(t, err, ErrSizeRejected)
			continue
		}
		assert.Positive(t, size)
		assert.LessOrEqual(t, size*entry, acct.Equity*cfg.MaxExposureFraction)
	}
}

func TestOpenRiskAndTradeBookkeeping(t *testing.T) {
	e := newEngine(t, testConfig())
	acct := models.NewAccount(1_000_000)
	e.Roll(acct, now)

	pos := models.Position{EntryPrice: 100, StopPrice: 99, Size: 10}
	e.OnEntry(acct, pos)
	assert.Equal(t, 10.0, acct.OpenRisk)

	e.OnExit(acct, pos, models.Trade{PnL: -10, ExitTime: now})
	assert.Zero(t, acct.OpenRisk)
	assert.Equal(t, 999_990.0, acct.Equity)
	assert.Equal(t, 10.0, acct.DailyRealizedLoss)
	assert.Equal(t, 1, acct.ConsecutiveLosses)
	assert.Equal(t, now, acct.LastLossTime)

	e.OnEntry(acct, pos)
	e.OnExit(acct, pos, models.Trade{PnL: 25, ExitTime: now.Add(time.Minute)})
	assert.Equal(t, 0, acct.ConsecutiveLosses)
	assert.Equal(t, 10.0, acct.DailyRealizedLoss)
	assert.Equal(t, 1_000_015.0, acct.Equity)
}

func TestDailyLossResetsOnNewUTCDay(t *testing.T) {
	e := newEngine(t, testConfig())
	acct := models.NewAccount(1_000_000)
	pos := models.Position{EntryPrice: 100, StopPrice: 99, Size: 1}

	e.OnEntry(acct, pos)
	e.OnExit(acct, pos, models.Trade{PnL: -500, ExitTime: now})
	assert.Equal(t, 500.0, acct.DailyRealizedLoss)

	e.OnEntry(acct, pos)
	e.OnExit(acct, pos, models.Trade{PnL: -200, ExitTime: now.Add(13 * time.Hour)})
	assert.Equal(t, 200.0, acct.DailyRealizedLoss)
	assert.Equal(t, 2, acct.ConsecutiveLosses)
}

func TestGuardCooldownAfterConsecutiveLosses(t *testing.T) {
	cfg := testConfig()
	e := newEngine(t, cfg)
	g := NewGuard(cfg)
	acct := models.NewAccount(1_000_000)
	pos := models.Position{EntryPrice: 100, StopPrice: 99, Size: 1}

	for i := 0; i < 3; i++ {
		ok, _ := g.PermitsEntry(*acct, now, false)
		require.True(t, ok)
		e.OnEntry(acct, pos)
		e.OnExit(acct, pos, models.Trade{PnL: -1, ExitTime: now.Add(time.Duration(i) * time.Minute)})
	}
	last := now.Add(2 * time.Minute)

	ok, reason := g.PermitsEntry(*acct, last.Add(30*time.Minute), false)
	assert.False(t, ok)
	assert.Equal(t, ReasonCooldown, reason)

	ok, reason = g.PermitsEntry(*acct, last.Add(time.Hour), false)
	assert.True(t, ok)
	assert.Equal(t, ReasonOK, reason)
}

func TestGuardDailyLossLimit(t *testing.T) {
	g := NewGuard(testConfig())
	acct := models.Account{Equity: 1_000_000, DailyRealizedLoss: 30_000, Day: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	ok, reason := g.PermitsEntry(acct, now, false)
	assert.False(t, ok)
	assert.Equal(t, ReasonDailyLoss, reason)

	acct.DailyRealizedLoss = 29_999
	ok, _ = g.PermitsEntry(acct, now, false)
	assert.True(t, ok)

	acct.DailyRealizedLoss = 50_000
	ok, _ = g.PermitsEntry(acct, now.Add(24*time.Hour), false)
	assert.True(t, ok)
}

func TestGuardDeniesWhenPositionOpen(t *testing.T) {
	g := NewGuard(testConfig())
	ok, reason := g.PermitsEntry(*models.NewAccount(1_000_000), now, true)
	assert.False(t, ok)
	assert.Equal(t, ReasonPositionOpen, reason)
}
