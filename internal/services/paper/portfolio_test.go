package paper

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seqIDs() func() string {
	n := 0
	return func() string { n++; return "t" + strconv.Itoa(n) }
}

func pos(symbol string, entry float64) models.Position {
	return models.Position{
		Symbol: symbol, EntryPrice: entry, EntryTime: t0, Size: 2,
		StopPrice: entry * 0.99, TargetPrice: entry * 1.02, MaxHolding: 5,
	}
}

func TestOpenCloseProducesTrade(t *testing.T) {
	p := New(0, WithIDs(seqIDs()))
	require.NoError(t, p.Open(pos("KRW-BTC", 100)))

	tr, err := p.Close("KRW-BTC", 102, models.ExitTP, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "t1", tr.ID)
	assert.Equal(t, 4.0, tr.PnL)
	assert.Equal(t, models.ExitTP, tr.Reason)
	assert.True(t, tr.Win())

	_, ok := p.Position("KRW-BTC")
	assert.False(t, ok)
	assert.Equal(t, []models.Trade{tr}, p.Trades())
}

func TestFeesChargedOnBothLegs(t *testing.T) {
	p := New(0.001)
	require.NoError(t, p.Open(pos("KRW-BTC", 100)))
	tr, err := p.Close("KRW-BTC", 100, models.ExitTimeout, t0)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, tr.Fees, 1e-12)
	assert.InDelta(t, -0.4, tr.PnL, 1e-12)
	assert.NotEmpty(t, tr.ID)
}

func TestOnePositionPerSymbol(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Open(pos("KRW-BTC", 100)))
	assert.ErrorIs(t, p.Open(pos("KRW-BTC", 101)), ErrPositionOpen)
	require.NoError(t, p.Open(pos("KRW-ETH", 10)))
	assert.Len(t, p.Positions(), 2)

	_, err := p.Close("KRW-XRP", 1, models.ExitSL, t0)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestOpenRejectsInvertedBarriers(t *testing.T) {
	p := New(0)
	bad := pos("KRW-BTC", 100)
	bad.StopPrice = 101
	assert.ErrorIs(t, p.Open(bad), ErrBadPosition)
	bad = pos("KRW-BTC", 100)
	bad.Size = 0
	assert.ErrorIs(t, p.Open(bad), ErrBadPosition)
}

func TestAge(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Open(pos("KRW-BTC", 100)))
	p.Age("KRW-BTC")
	got, ok := p.Age("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, 2, got.Age)
	_, ok = p.Age("KRW-ETH")
	assert.False(t, ok)
}

func TestPageNewestFirst(t *testing.T) {
	p := New(0, WithIDs(seqIDs()))
	for i := 0; i < 5; i++ {
		sym := "KRW-BTC"
		if i%2 == 1 {
			sym = "KRW-ETH"
		}
		require.NoError(t, p.Open(pos(sym, 100)))
		_, err := p.Close(sym, 101, models.ExitReversal, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	page := p.Page("", 1, 2)
	require.Len(t, page, 2)
	assert.Equal(t, "t4", page[0].ID)
	assert.Equal(t, "t3", page[1].ID)

	btc := p.Page("KRW-BTC", 0, 10)
	require.Len(t, btc, 3)
	assert.Equal(t, "t5", btc[0].ID)
}

func TestStatsAndEquityCurve(t *testing.T) {
	trades := []models.Trade{
		{PnL: 100, Reason: models.ExitTP},
		{PnL: -300, Reason: models.ExitSL},
		{PnL: 50, Reason: models.ExitTimeout},
	}
	curve := EquityCurve(1000, trades)
	require.Len(t, curve, 3)
	assert.Equal(t, []float64{1100, 800, 850}, []float64{curve[0].Equity, curve[1].Equity, curve[2].Equity})

	s := ComputeStats(1000, trades)
	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 66.666, s.WinRate, 1e-3)
	assert.Equal(t, -150.0, s.TotalPnL)
	assert.Equal(t, 850.0, s.FinalEquity)
	assert.InDelta(t, -15, s.ReturnPct, 1e-9)
	assert.InDelta(t, 300.0/1100*100, s.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 1, s.ByReason[models.ExitSL])
}

func TestStatsEmptyLedger(t *testing.T) {
	s := ComputeStats(1000, nil)
	assert.Zero(t, s.Trades)
	assert.Equal(t, 1000.0, s.FinalEquity)
	assert.Zero(t, s.MaxDrawdownPct)
}
