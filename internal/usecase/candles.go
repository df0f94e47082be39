package usecase

import (
	"context"
	"fmt"
	"time"

	"PaperQuant/internal/domain/models"
	domrepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/services/candles"
)

// CandlesUseCase reads persisted candles back as a contiguous series.
type CandlesUseCase struct {
	store    domrepo.CandleStore
	interval time.Duration
}

func NewCandlesUseCase(store domrepo.CandleStore, interval time.Duration) *CandlesUseCase {
	return &CandlesUseCase{store: store, interval: interval}
}

type GetCandlesParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

type GetCandlesResult struct {
	Symbol  string          `json:"symbol"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Count   int             `json:"count"`
	Candles []models.Candle `json:"candles"`
}

// GetCandles loads [From, To) for one symbol, ordered and gap-filled.
// Limit keeps the newest candles.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 500000 {
		p.Limit = 500000
	}

	raw, err := uc.store.Candles(ctx, p.Symbol, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	series, err := candles.FillGaps(dedupe(raw), uc.interval)
	if err != nil {
		return nil, fmt.Errorf("fill gaps: %w", err)
	}
	if len(series) > p.Limit {
		series = series[len(series)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:  p.Symbol,
		From:    p.From,
		To:      p.To,
		Count:   len(series),
		Candles: series,
	}, nil
}
