package models

import "time"

// PositionState is the per-symbol decision state.
type PositionState string

const (
	StateFlat       PositionState = "FLAT"
	StateEntering   PositionState = "ENTERING"
	StateInPosition PositionState = "IN_POSITION"
	StateExiting    PositionState = "EXITING"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTP       ExitReason = "TP"
	ExitSL       ExitReason = "SL"
	ExitTimeout  ExitReason = "TIMEOUT"
	ExitReversal ExitReason = "REVERSAL"
)

// Position is an open paper position. Stop < Entry < Target always holds.
type Position struct {
	Symbol      string    `json:"symbol"`
	EntryPrice  float64   `json:"entry_price"`
	EntryTime   time.Time `json:"entry_time"`
	Size        float64   `json:"size"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	MaxHolding  int       `json:"max_holding"`
	Age         int       `json:"age"` // candles processed since entry
	EntryFee    float64   `json:"entry_fee"`
}

// Risk is the amount lost if the stop is hit.
func (p Position) Risk() float64 {
	return (p.EntryPrice - p.StopPrice) * p.Size
}

// Account is the paper trading account. It is owned by one decision loop
// and passed explicitly to every component that reads or mutates it.
type Account struct {
	Equity            float64   `json:"equity"`
	OpenRisk          float64   `json:"open_risk"`
	DailyRealizedLoss float64   `json:"daily_realized_loss"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastLossTime      time.Time `json:"last_loss_time"`
	Day               time.Time `json:"day"` // UTC midnight of the current trading day
}

// NewAccount returns a fresh account with the given starting equity.
func NewAccount(equity float64) *Account {
	return &Account{Equity: equity}
}

// Trade is an immutable record of a closed position.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Size       float64    `json:"size"`
	Fees       float64    `json:"fees"`
	PnL        float64    `json:"pnl"`
	Reason     ExitReason `json:"exit_reason"`
}

// Win reports whether the trade made money after fees.
func (t Trade) Win() bool { return t.PnL > 0 }

// Snapshot is a checkpoint of live trading state.
type Snapshot struct {
	Account   Account    `json:"account"`
	Positions []Position `json:"positions"`
	SavedAt   time.Time  `json:"saved_at"`
}
