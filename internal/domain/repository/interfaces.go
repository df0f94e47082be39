package repository

import (
	"context"
	"time"

	"PaperQuant/internal/domain/models"
)

// TickStream is a live exchange feed.
type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickPublisher forwards raw ticks to a transport bus.
type TickPublisher interface {
	Publish(ctx context.Context, t models.Tick) error
	PublishBatch(ctx context.Context, ticks []models.Tick) error
	Close() error
}

// CandleSource serves historical candles, newest first, ending strictly before the given time.
type CandleSource interface {
	CandlesBefore(ctx context.Context, symbol string, iv Interval, before time.Time, count int) ([]models.Candle, error)
}

// CandleStore persists closed candles.
type CandleStore interface {
	Init(ctx context.Context) error
	StoreCandles(ctx context.Context, candles []models.Candle) error
	Candles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

// TradeLedger receives every closed paper trade.
type TradeLedger interface {
	RecordTrade(ctx context.Context, t models.Trade) error
	Close() error
}

// StateStore checkpoints the live account so a restart can resume it.
type StateStore interface {
	SaveState(ctx context.Context, s models.Snapshot) error
	LoadState(ctx context.Context) (models.Snapshot, bool, error)
	Close() error
}

type Metrics interface {
	RecordTick(symbol string)
	RecordCandle(symbol string, synthetic bool)
	RecordLateTick(symbol string)
	RecordGuardDenial(reason string)
	RecordTrade(symbol, reason string, pnl float64)
	RecordEquity(v float64)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
