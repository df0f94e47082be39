package repository

import (
	"context"
	"fmt"
	"time"

	"PaperQuant/internal/domain/models"
	domrepo "PaperQuant/internal/domain/repository"
	pkgch "PaperQuant/pkg/clickhouse"
	applogger "PaperQuant/pkg/logger"
)

const (
	candlesTable = "candles"
	tradesTable  = "paper_trades"
)

// Schema returns idempotent DDL for the candle and trade tables.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol LowCardinality(String),
    open_time DateTime64(3, 'UTC'),
    close_time DateTime64(3, 'UTC'),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64,
    trade_count UInt32,
    synthetic UInt8,
    inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (symbol, open_time)`, database, candlesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    id String,
    symbol LowCardinality(String),
    entry_time DateTime64(3, 'UTC'),
    exit_time DateTime64(3, 'UTC'),
    entry_price Float64,
    exit_price Float64,
    size Float64,
    fees Float64,
    pnl Float64,
    exit_reason LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, exit_time, id)`, database, tradesTable),
	}
}

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	ch       *pkgch.Client
	database string
	l        *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{ch: ch, database: database, l: l}
}

func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.database))
}

func (s *CHCandleStore) StoreCandles(ctx context.Context, candles []models.Candle) error {
	start := time.Now()
	q := fmt.Sprintf(`INSERT INTO %s.%s (symbol, open_time, close_time, open, high, low, close, volume, trade_count, synthetic)`,
		s.database, candlesTable)
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{
			c.Symbol, c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume,
			uint32(c.TradeCount), boolToUInt8(c.Synthetic),
		})
	}
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		s.l.Error("clickhouse store_candles error", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("store candles: %w", err)
	}
	s.l.Debug("clickhouse store_candles ok", applogger.Int("rows", len(rows)), applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

// Candles returns [from, to) for symbol ordered by open time.
func (s *CHCandleStore) Candles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, open_time, close_time, open, high, low, close, volume, trade_count, synthetic
        FROM %s.%s FINAL
        WHERE symbol = ? AND open_time >= ? AND open_time < ?
        ORDER BY open_time ASC`, s.database, candlesTable)
	rows, err := s.ch.DB().QueryContext(ctx, q, symbol, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse candles query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var (
			c     models.Candle
			count uint32
			syn   uint8
		)
		if err := rows.Scan(&c.Symbol, &c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &count, &syn); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime, c.CloseTime = c.OpenTime.UTC(), c.CloseTime.UTC()
		c.TradeCount = int(count)
		c.Synthetic = syn == 1
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse candles ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool is owned by pkg/clickhouse.
func (s *CHCandleStore) Close() error { return nil }

// CHLedger implements TradeLedger backed by ClickHouse.
type CHLedger struct {
	ch       *pkgch.Client
	database string
}

func NewCHLedger(ch *pkgch.Client, database string) *CHLedger {
	return &CHLedger{ch: ch, database: database}
}

func (l *CHLedger) RecordTrade(ctx context.Context, t models.Trade) error {
	q := fmt.Sprintf(`INSERT INTO %s.%s (id, symbol, entry_time, exit_time, entry_price, exit_price, size, fees, pnl, exit_reason)`,
		l.database, tradesTable)
	err := l.ch.InsertBatch(ctx, q, [][]any{{
		t.ID, t.Symbol, t.EntryTime, t.ExitTime,
		t.EntryPrice, t.ExitPrice, t.Size, t.Fees, t.PnL, string(t.Reason),
	}})
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.ID, err)
	}
	return nil
}

func (l *CHLedger) Close() error { return nil }

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var (
	_ domrepo.CandleStore = (*CHCandleStore)(nil)
	_ domrepo.TradeLedger = (*CHLedger)(nil)
)
