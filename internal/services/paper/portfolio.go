package paper

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"PaperQuant/internal/domain/models"
)

var (
	ErrPositionOpen = errors.New("position already open")
	ErrNoPosition   = errors.New("no open position")
	ErrBadPosition  = errors.New("invalid position")
)

// Option configures a Portfolio.
type Option func(*Portfolio)

// WithIDs replaces the trade id generator.
func WithIDs(gen func() string) Option {
	return func(p *Portfolio) { p.newID = gen }
}

// Portfolio simulates fills at the triggering price with no slippage or partial
// fills, holding at most one position per symbol and an append-only trade ledger.
// Mutations come from the single decision loop; reads may come from the status API.
type Portfolio struct {
	feeRate float64
	newID   func() string

	mu     sync.RWMutex
	open   map[string]models.Position
	ledger []models.Trade
}

func New(feeRate float64, opts ...Option) *Portfolio {
	p := &Portfolio{
		feeRate: feeRate,
		newID:   uuid.NewString,
		open:    make(map[string]models.Position),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open records a new position filled at its entry price.
func (p *Portfolio) Open(pos models.Position) error {
	if pos.Size <= 0 || !(pos.StopPrice < pos.EntryPrice && pos.EntryPrice < pos.TargetPrice) {
		return fmt.Errorf("%w: %+v", ErrBadPosition, pos)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.open[pos.Symbol]; ok {
		return fmt.Errorf("%w: %s", ErrPositionOpen, pos.Symbol)
	}
	pos.EntryFee = pos.EntryPrice * pos.Size * p.feeRate
	p.open[pos.Symbol] = pos
	return nil
}

// Close fills the symbol's position at exitPrice and appends the resulting trade.
func (p *Portfolio) Close(symbol string, exitPrice float64, reason models.ExitReason, at time.Time) (models.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.open[symbol]
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	fees := pos.EntryFee + exitPrice*pos.Size*p.feeRate
	t := models.Trade{
		ID:         p.newID(),
		Symbol:     symbol,
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Size:       pos.Size,
		Fees:       fees,
		PnL:        (exitPrice-pos.EntryPrice)*pos.Size - fees,
		Reason:     reason,
	}
	delete(p.open, symbol)
	p.ledger = append(p.ledger, t)
	return t, nil
}

// Age increments the holding age of the symbol's position and returns it.
func (p *Portfolio) Age(symbol string) (models.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.open[symbol]
	if !ok {
		return models.Position{}, false
	}
	pos.Age++
	p.open[symbol] = pos
	return pos, true
}

// Position returns the open position of symbol.
func (p *Portfolio) Position(symbol string) (models.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.open[symbol]
	return pos, ok
}

// Positions returns open positions ordered by symbol.
func (p *Portfolio) Positions() []models.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Position, 0, len(p.open))
	for _, pos := range p.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Restore reinstates positions from a checkpoint. It must run before any Open.
func (p *Portfolio) Restore(positions []models.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range positions {
		if _, ok := p.open[pos.Symbol]; ok {
			return fmt.Errorf("%w: %s", ErrPositionOpen, pos.Symbol)
		}
		p.open[pos.Symbol] = pos
	}
	return nil
}

// Trades returns a copy of the ledger in close order.
func (p *Portfolio) Trades() []models.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Trade, len(p.ledger))
	copy(out, p.ledger)
	return out
}

// Page returns up to limit trades after skipping offset, optionally for one symbol, newest first.
func (p *Portfolio) Page(symbol string, offset, limit int) []models.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []models.Trade
	skipped := 0
	for i := len(p.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		t := p.ledger[i]
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, t)
	}
	return out
}
