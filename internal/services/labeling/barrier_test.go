package labeling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperQuant/internal/domain/models"
)

func flat(n int, price float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Open: price, High: price, Low: price, Close: price}
	}
	return out
}

var params = Params{TakeProfit: 0.02, StopLoss: 0.01, MaxHolding: 5}

func TestStopLossHitFirst(t *testing.T) {
	s := flat(8, 100)
	s[3].Low = 99

	l, err := Label(s, 0, params)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSL, l.Outcome)
	assert.Equal(t, 3, l.HoldingLength)
	assert.Equal(t, -0.01, l.RealizedReturn)
}

func TestSameCandleTouchingBothIsStopLoss(t *testing.T) {
	s := flat(8, 100)
	s[3].Low = 99
	s[3].High = 102

	l, err := Label(s, 0, params)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSL, l.Outcome)
	assert.Equal(t, 3, l.HoldingLength)
}

func TestTakeProfit(t *testing.T) {
	s := flat(8, 100)
	s[2].High = 102.5
	s[4].Low = 98

	l, err := Label(s, 0, params)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTP, l.Outcome)
	assert.Equal(t, 2, l.HoldingLength)
	assert.Equal(t, 0.02, l.RealizedReturn)
	assert.Equal(t, 1.0, l.Target())
}

func TestTimeout(t *testing.T) {
	s := flat(8, 100)
	s[5].Close = 101

	l, err := Label(s, 0, params)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimeout, l.Outcome)
	assert.Equal(t, 5, l.HoldingLength)
	assert.InDelta(t, 0.01, l.RealizedReturn, 1e-12)
	assert.Zero(t, l.Target())
}

func TestCandlesBeyondHorizonIgnored(t *testing.T) {
	s := flat(8, 100)
	s[6].High = 200
	l, err := Label(s, 0, params)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimeout, l.Outcome)
}

func TestInsufficientFuture(t *testing.T) {
	s := flat(8, 100)
	_, err := Label(s, 2, params)
	require.NoError(t, err)
	_, err = Label(s, 3, params)
	assert.ErrorIs(t, err, ErrInsufficientFuture)
	assert.False(t, Labelable(3, 8, 5))
}

func TestLabelSeries(t *testing.T) {
	s := flat(10, 100)
	s[4].High = 103

	out, err := LabelSeries(s, params)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, l := range out {
		assert.Equal(t, i, l.Index)
	}
	assert.Equal(t, models.OutcomeTP, out[0].Label.Outcome)
	assert.Equal(t, 4, out[0].Label.HoldingLength)
	assert.Equal(t, models.OutcomeTP, out[3].Label.Outcome)
	assert.Equal(t, models.OutcomeTimeout, out[4].Label.Outcome)

	p := params
	p.DropTimeouts = true
	out, err = LabelSeries(s, p)
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestInvalidParams(t *testing.T) {
	_, err := Label(flat(10, 1), 0, Params{TakeProfit: 0.01, StopLoss: 0, MaxHolding: 2})
	assert.Error(t, err)
	_, err = LabelSeries(flat(10, 1), Params{TakeProfit: 0.01, StopLoss: 0.01})
	assert.Error(t, err)
}
