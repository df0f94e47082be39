package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"PaperQuant/internal/domain/models"
	domrepo "PaperQuant/internal/domain/repository"
)

// ErrPipelineClosed is returned by Process after Close.
var ErrPipelineClosed = errors.New("tick pipeline closed")

// Item is one queued tick. Resumed marks a feed restart: the consumer must
// discard any partial candle state before handling later items.
type Item struct {
	Tick    models.Tick
	Resumed bool
}

// TickPipeline sits between the feed and the candle aggregator.
// It validates and optionally transforms ticks, then queues them in arrival
// order. The queue is bounded; a full queue blocks the producer.
type TickPipeline struct {
	metrics   domrepo.Metrics
	bufSize   int
	ch        chan Item
	transform func(models.Tick) models.Tick
	symbols   map[string]struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type PipelineOption func(*TickPipeline)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites each tick before validation.
func WithTransform(fn func(models.Tick) models.Tick) PipelineOption {
	return func(p *TickPipeline) { p.transform = fn }
}

// WithSymbols restricts the pipeline to the given symbols.
func WithSymbols(symbols []string) PipelineOption {
	return func(p *TickPipeline) {
		if len(symbols) == 0 {
			return
		}
		p.symbols = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			p.symbols[s] = struct{}{}
		}
	}
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		metrics: metrics,
		bufSize: 4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ch = make(chan Item, p.bufSize)
	return p
}

// Process validates t and enqueues it. It blocks while the queue is full
// and returns ctx.Err() if ctx ends first.
func (p *TickPipeline) Process(ctx context.Context, t models.Tick) error {
	start := time.Now()
	if p.transform != nil {
		t = p.transform(t)
	}
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.symbols != nil {
		if _, ok := p.symbols[t.Symbol]; !ok {
			return nil
		}
	}
	t.Timestamp = t.Timestamp.UTC()
	if err := p.push(ctx, Item{Tick: t}); err != nil {
		return err
	}
	p.metrics.RecordLatency("pipeline_enqueue", time.Since(start).Seconds())
	return nil
}

// MarkResumed queues a resume marker behind every tick already accepted.
func (p *TickPipeline) MarkResumed(ctx context.Context) error {
	return p.push(ctx, Item{Resumed: true})
}

func (p *TickPipeline) push(ctx context.Context, it Item) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}
	select {
	case p.ch <- it:
		return nil
	default:
	}
	p.metrics.RecordError("pipeline_backpressure")
	select {
	case p.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Items returns the queue. It is closed after Close once drained.
func (p *TickPipeline) Items() <-chan Item { return p.ch }

// Depth returns the number of queued items.
func (p *TickPipeline) Depth() int { return len(p.ch) }

// Close stops accepting ticks. Queued items remain readable.
func (p *TickPipeline) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.ch)
		p.mu.Unlock()
	})
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if !(t.Price > 0) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("price must be positive, got %v", t.Price)
	}
	if t.Quantity < 0 || math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) {
		return fmt.Errorf("quantity invalid: %v", t.Quantity)
	}
	return nil
}
