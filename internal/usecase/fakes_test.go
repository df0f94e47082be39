package usecase

import (
	"context"
	"sync"
	"time"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/services/features"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func minute(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func flat(symbol string, i int, price float64) models.Candle {
	return models.Candle{
		Symbol:    symbol,
		OpenTime:  minute(i),
		CloseTime: minute(i + 1),
		Open:      price, High: price, Low: price, Close: price, Volume: 1, TradeCount: 1,
	}
}

// constScorer always returns the same probability.
type constScorer float64

func (s constScorer) Predict(models.FeatureVector) (float64, error) { return float64(s), nil }
func (constScorer) FeatureNames() []string                          { return features.Names() }
func (constScorer) Version() string                                 { return "const" }

// foreignScorer was trained on a feature set the computer does not produce.
type foreignScorer struct{}

func (foreignScorer) Predict(models.FeatureVector) (float64, error) { return 1, nil }
func (foreignScorer) FeatureNames() []string                          { return []string{"ma_5", "legacy_gap"} }
func (foreignScorer) Version() string                                 { return "foreign" }

type memCandleStore struct {
	mu      sync.Mutex
	candles []models.Candle
}

func (s *memCandleStore) Init(context.Context) error { return nil }
func (s *memCandleStore) StoreCandles(_ context.Context, cs []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles, cs...)
	return nil
}
func (s *memCandleStore) Candles(context.Context, string, time.Time, time.Time) ([]models.Candle, error) {
	return nil, nil
}
func (s *memCandleStore) Health(context.Context) error { return nil }
func (s *memCandleStore) Close() error                 { return nil }

func (s *memCandleStore) stored() []models.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Candle(nil), s.candles...)
}

type memStateStore struct {
	snap  models.Snapshot
	found bool
	saves int
}

func (s *memStateStore) SaveState(_ context.Context, snap models.Snapshot) error {
	s.snap, s.found = snap, true
	s.saves++
	return nil
}
func (s *memStateStore) LoadState(context.Context) (models.Snapshot, bool, error) {
	return s.snap, s.found, nil
}
func (s *memStateStore) Close() error { return nil }

// recordingSink keeps ticks and resume markers in arrival order.
type recordingSink struct {
	mu     sync.Mutex
	events []string
	ticks  []models.Tick
	onTick func(models.Tick)
}

func (s *recordingSink) Process(_ context.Context, t models.Tick) error {
	s.mu.Lock()
	s.events = append(s.events, "tick:"+t.Symbol)
	s.ticks = append(s.ticks, t)
	s.mu.Unlock()
	if s.onTick != nil {
		s.onTick(t)
	}
	return nil
}

func (s *recordingSink) MarkResumed(context.Context) error {
	s.mu.Lock()
	s.events = append(s.events, "resumed")
	s.mu.Unlock()
	return nil
}

// scriptedFeed pushes a fixed script into the sink and returns.
type scriptedFeed struct {
	script []any
}

func (f *scriptedFeed) Run(ctx context.Context, sink TickSink) error {
	for _, step := range f.script {
		var err error
		switch v := step.(type) {
		case models.Tick:
			err = sink.Process(ctx, v)
		case resume:
			err = sink.MarkResumed(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type resume struct{}

// pagedSource serves candles newest first, strictly before the requested time.
type pagedSource struct {
	series []models.Candle
	calls  int
}

func (s *pagedSource) CandlesBefore(_ context.Context, symbol string, _ drepo.Interval, before time.Time, count int) ([]models.Candle, error) {
	s.calls++
	var out []models.Candle
	for i := len(s.series) - 1; i >= 0 && len(out) < count; i-- {
		c := s.series[i]
		if c.Symbol == symbol && c.OpenTime.Before(before) {
			out = append(out, c)
		}
	}
	return out, nil
}
