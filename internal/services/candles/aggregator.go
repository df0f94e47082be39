package candles

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/domain/repository"
)

var (
	// ErrLateTick is returned when a tick is dropped because its candle is already closed
	// or it lags the newest tick of the open candle by more than the tolerance.
	ErrLateTick = errors.New("late tick dropped")
	// ErrInvalidTick is returned for ticks with no symbol, a non-positive price or negative quantity.
	ErrInvalidTick = errors.New("invalid tick")
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics records ticks, candles and late-tick anomalies.
func WithMetrics(m repository.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithGapFill toggles synthetic candles for intervals without trades (default on).
func WithGapFill(enabled bool) Option {
	return func(a *Aggregator) { a.gapFill = enabled }
}

// Stats is the per-symbol drop accounting.
type Stats struct {
	Anomalies     int
	DroppedVolume float64
}

// Aggregator folds ticks into fixed-interval candles, one open candle per symbol.
// It is not safe for concurrent use; the live pipeline gives it a single owner goroutine.
type Aggregator struct {
	interval  time.Duration
	tolerance time.Duration
	gapFill   bool
	metrics   repository.Metrics
	books     map[string]*book
}

type book struct {
	open *bar
	// previous interval, held until the tolerance past its close has elapsed
	pending *bar
	// close time of the last emitted candle
	lastCloseTime time.Time
	lastClose     float64
	emitted       bool
	// ticks before this instant belong to a discarded bucket
	resumeFrom time.Time
	stats      Stats
}

// New creates an aggregator for the given interval. lateTolerance bounds how far
// behind the newest tick a tick may arrive and still be counted, including across
// an interval boundary: the previous candle is emitted only once a tick at or past
// its close plus the tolerance arrives.
func New(interval, lateTolerance time.Duration, opts ...Option) (*Aggregator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if lateTolerance < 0 || lateTolerance >= interval {
		return nil, fmt.Errorf("late tolerance must be in [0, %s), got %s", interval, lateTolerance)
	}
	a := &Aggregator{
		interval:  interval,
		tolerance: lateTolerance,
		gapFill:   true,
		books:     make(map[string]*book),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Interval returns the bucket width.
func (a *Aggregator) Interval() time.Duration { return a.interval }

// BucketStart returns the open time of the bucket containing ts.
func BucketStart(ts time.Time, interval time.Duration) time.Time {
	ns := ts.UnixNano()
	iv := int64(interval)
	q := ns / iv
	if ns%iv < 0 {
		q--
	}
	return time.Unix(0, q*iv).UTC()
}

// Ingest applies a tick and returns the candles it closed, oldest first.
// A tick in a later bucket closes the open candle and, with gap fill on, emits one
// synthetic candle per empty interval in between. A tick in the next bucket that
// is still within the tolerance of the boundary only holds the open candle back.
func (a *Aggregator) Ingest(t models.Tick) ([]models.Candle, error) {
	if t.Symbol == "" || t.Price <= 0 || t.Quantity < 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidTick, t)
	}
	b := a.book(t.Symbol)
	ts := t.Timestamp.UTC()
	start := BucketStart(ts, a.interval)

	if a.metrics != nil {
		a.metrics.RecordTick(t.Symbol)
	}

	if ts.Before(b.resumeFrom) {
		a.drop(b, t)
		return nil, ErrLateTick
	}

	if b.pending != nil && start.Equal(b.pending.c.OpenTime) {
		if b.open.lastTick.Sub(ts) <= a.tolerance {
			b.pending.apply(t, false)
			return nil, nil
		}
		a.drop(b, t)
		return nil, ErrLateTick
	}

	if b.open == nil {
		if b.emitted && start.Before(b.lastCloseTime) {
			a.drop(b, t)
			return nil, ErrLateTick
		}
		out := a.fillTo(b, t.Symbol, start)
		b.open = newBar(t, start, a.interval)
		return out, nil
	}

	open := b.open.c.OpenTime
	switch {
	case start.Equal(open):
		if !ts.Before(b.open.lastTick) {
			b.open.apply(t, true)
			return a.release(b, ts), nil
		}
		if b.open.lastTick.Sub(ts) <= a.tolerance {
			b.open.apply(t, false)
			return nil, nil
		}
		a.drop(b, t)
		return nil, ErrLateTick
	case start.Before(open):
		a.drop(b, t)
		return nil, ErrLateTick
	}

	var out []models.Candle
	if b.pending != nil {
		out = append(out, a.closeBar(b, &b.pending))
	}
	if start.Equal(b.open.c.CloseTime) && ts.Sub(start) < a.tolerance {
		b.pending = b.open
		b.open = newBar(t, start, a.interval)
		return out, nil
	}
	out = append(out, a.closeBar(b, &b.open))
	out = append(out, a.fillTo(b, t.Symbol, start)...)
	b.open = newBar(t, start, a.interval)
	return out, nil
}

// release emits the held candle once newest is past its close plus the tolerance.
func (a *Aggregator) release(b *book, newest time.Time) []models.Candle {
	if b.pending == nil || newest.Before(b.pending.c.CloseTime.Add(a.tolerance)) {
		return nil
	}
	return []models.Candle{a.closeBar(b, &b.pending)}
}

// Flush closes the open candle of symbol if its close time is at or before now,
// then emits synthetic candles for every further interval fully elapsed by now.
func (a *Aggregator) Flush(symbol string, now time.Time) []models.Candle {
	b, ok := a.books[symbol]
	if !ok {
		return nil
	}
	var out []models.Candle
	if b.pending != nil {
		if now.Before(b.pending.c.CloseTime) {
			return nil
		}
		out = append(out, a.closeBar(b, &b.pending))
	}
	if b.open != nil {
		if now.Before(b.open.c.CloseTime) {
			return out
		}
		out = append(out, a.closeBar(b, &b.open))
	}
	if !b.emitted {
		return out
	}
	return append(out, a.fillTo(b, symbol, BucketStart(now, a.interval))...)
}

// FlushAll flushes every symbol in name order.
func (a *Aggregator) FlushAll(now time.Time) []models.Candle {
	var out []models.Candle
	for _, s := range a.Symbols() {
		out = append(out, a.Flush(s, now)...)
	}
	return out
}

// Reset discards the partial open candle of symbol. Used when a feed resumes after a
// disconnect and the open interval can no longer be trusted to be complete. A held
// previous candle is complete and is returned closed.
func (a *Aggregator) Reset(symbol string) []models.Candle {
	b, ok := a.books[symbol]
	if !ok {
		return nil
	}
	var out []models.Candle
	if b.pending != nil {
		out = append(out, a.closeBar(b, &b.pending))
	}
	if b.open != nil {
		b.resumeFrom = b.open.c.CloseTime
		b.stats.DroppedVolume += b.open.c.Volume
		b.open = nil
	}
	return out
}

// ResetAll resets every symbol in name order.
func (a *Aggregator) ResetAll() []models.Candle {
	var out []models.Candle
	for _, s := range a.Symbols() {
		out = append(out, a.Reset(s)...)
	}
	return out
}

// Open returns a copy of the open candle of symbol.
func (a *Aggregator) Open(symbol string) (models.Candle, bool) {
	b, ok := a.books[symbol]
	if !ok || b.open == nil {
		return models.Candle{}, false
	}
	return b.open.c, true
}

// Stats returns drop accounting for symbol.
func (a *Aggregator) Stats(symbol string) Stats {
	if b, ok := a.books[symbol]; ok {
		return b.stats
	}
	return Stats{}
}

// Symbols returns every symbol seen so far, sorted.
func (a *Aggregator) Symbols() []string {
	out := make([]string, 0, len(a.books))
	for s := range a.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (a *Aggregator) book(symbol string) *book {
	b, ok := a.books[symbol]
	if !ok {
		b = &book{}
		a.books[symbol] = b
	}
	return b
}

func (a *Aggregator) drop(b *book, t models.Tick) {
	b.stats.Anomalies++
	b.stats.DroppedVolume += t.Quantity
	if a.metrics != nil {
		a.metrics.RecordLateTick(t.Symbol)
	}
}

func (a *Aggregator) closeBar(b *book, slot **bar) models.Candle {
	c := (*slot).close()
	*slot = nil
	b.emitted = true
	b.lastClose = c.Close
	b.lastCloseTime = c.CloseTime
	if a.metrics != nil {
		a.metrics.RecordCandle(c.Symbol, false)
	}
	return c
}

// fillTo emits synthetic candles from the last emitted close up to start (exclusive).
func (a *Aggregator) fillTo(b *book, symbol string, start time.Time) []models.Candle {
	if !a.gapFill || !b.emitted {
		return nil
	}
	var out []models.Candle
	for t := b.lastCloseTime; t.Before(start); t = t.Add(a.interval) {
		c := synthetic(symbol, t, a.interval, b.lastClose)
		out = append(out, c)
		b.lastCloseTime = c.CloseTime
		if a.metrics != nil {
			a.metrics.RecordCandle(symbol, true)
		}
	}
	return out
}

func synthetic(symbol string, open time.Time, interval time.Duration, price float64) models.Candle {
	return models.Candle{
		Symbol:    symbol,
		OpenTime:  open,
		CloseTime: open.Add(interval),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Synthetic: true,
	}
}

// bar is the single mutable candle of a symbol.
type bar struct {
	c        models.Candle
	lastTick time.Time
	closed   bool
}

func newBar(t models.Tick, start time.Time, interval time.Duration) *bar {
	return &bar{
		c: models.Candle{
			Symbol:     t.Symbol,
			OpenTime:   start,
			CloseTime:  start.Add(interval),
			Open:       t.Price,
			High:       t.Price,
			Low:        t.Price,
			Close:      t.Price,
			Volume:     t.Quantity,
			TradeCount: 1,
		},
		lastTick: t.Timestamp.UTC(),
	}
}

func (b *bar) apply(t models.Tick, updateClose bool) {
	if b.closed {
		panic("candles: tick applied to a closed candle")
	}
	if t.Price > b.c.High {
		b.c.High = t.Price
	}
	if t.Price < b.c.Low {
		b.c.Low = t.Price
	}
	b.c.Volume += t.Quantity
	b.c.TradeCount++
	if updateClose {
		b.c.Close = t.Price
		b.lastTick = t.Timestamp.UTC()
	}
}

func (b *bar) close() models.Candle {
	b.closed = true
	return b.c
}
