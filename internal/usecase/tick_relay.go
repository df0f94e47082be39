package usecase

import (
	"context"
	"fmt"
	"time"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/pkg/logger"
)

// TickRelay is a TickSink that forwards every tick to a publisher.
// The relay command uses it to fan the exchange feed out onto Kafka.
type TickRelay struct {
	pub     drepo.TickPublisher
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	sent    int64
}

// NewTickRelay creates a new TickRelay instance.
func NewTickRelay(pub drepo.TickPublisher, metrics drepo.Metrics, log *logger.Logger, backend string) *TickRelay {
	return &TickRelay{pub: pub, metrics: metrics, log: log, backend: backend}
}

// Process publishes a single tick.
func (r *TickRelay) Process(ctx context.Context, t models.Tick) error {
	start := time.Now()
	if err := r.pub.Publish(ctx, t); err != nil {
		r.metrics.RecordError("relay")
		return fmt.Errorf("relay tick: %w", err)
	}
	r.sent++
	r.metrics.RecordTick(t.Symbol)
	r.metrics.RecordMessageSent(r.backend, t.Symbol)
	r.metrics.RecordLatency("relay", time.Since(start).Seconds())
	return nil
}

// MarkResumed only logs; downstream consumers rebuild candles on their own.
func (r *TickRelay) MarkResumed(context.Context) error {
	r.log.Info("feed resumed", logger.Int64("relayed", r.sent))
	return nil
}

// Sent returns the number of ticks published.
func (r *TickRelay) Sent() int64 { return r.sent }
