package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/pkg/logger"
)

// TickSink receives validated ticks in arrival order.
type TickSink interface {
	Process(ctx context.Context, t models.Tick) error
	MarkResumed(ctx context.Context) error
}

// TickFeed produces ticks into a sink until ctx ends.
type TickFeed interface {
	Run(ctx context.Context, sink TickSink) error
}

// StreamFeed reads a live exchange stream. After a stream error it marks the
// sink resumed and reconnects, so partial candles never span a disconnect.
type StreamFeed struct {
	stream  drepo.TickStream
	metrics drepo.Metrics
	log     *logger.Logger
	backoff time.Duration
}

// NewStreamFeed creates a new StreamFeed instance.
func NewStreamFeed(stream drepo.TickStream, metrics drepo.Metrics, log *logger.Logger, reconnectDelay time.Duration) *StreamFeed {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &StreamFeed{stream: stream, metrics: metrics, log: log, backoff: reconnectDelay}
}

// IsConnected returns true if the market stream is connected.
func (f *StreamFeed) IsConnected() bool {
	return f.stream.IsConnected()
}

func (f *StreamFeed) Run(ctx context.Context, sink TickSink) error {
	if err := f.stream.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer f.stream.Close()
	if err := f.stream.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	tickCh, errCh := f.stream.Read(ctx)
	for {
		var streamErr error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			streamErr = err
		case t, ok := <-tickCh:
			if !ok {
				streamErr = errors.New("tick stream closed")
				break
			}
			if err := sink.Process(ctx, t); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.log.Debug("tick rejected", logger.String("symbol", t.Symbol), logger.Error(err))
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.metrics.RecordError("stream")
		f.log.Warn("tick stream interrupted, reconnecting", logger.Error(streamErr))
		if err := sink.MarkResumed(ctx); err != nil {
			return err
		}
		if err := f.reconnect(ctx); err != nil {
			return err
		}
		tickCh, errCh = f.stream.Read(ctx)
	}
}

func (f *StreamFeed) reconnect(ctx context.Context) error {
	delay := f.backoff
	for attempt := 1; ; attempt++ {
		err := f.stream.Reconnect(ctx)
		if err == nil {
			f.log.Info("tick stream reconnected", logger.Int("attempt", attempt))
			return nil
		}
		f.log.Warn("reconnect failed", logger.Int("attempt", attempt), logger.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}
