package usecase

import (
	"sort"
	"sync"
	"time"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/services/decision"
)

// SymbolStatus is the latest decision outcome for one symbol.
type SymbolStatus struct {
	Symbol     string               `json:"symbol"`
	State      models.PositionState `json:"state"`
	LastClose  float64              `json:"last_close"`
	CandleTime time.Time            `json:"candle_time"`
	Synthetic  bool                 `json:"synthetic"`
	Score      *float64             `json:"score,omitempty"`
	Denied     string               `json:"denied,omitempty"`
}

// StatusBoard is a read model the decision loop publishes into and the
// status API reads from.
type StatusBoard struct {
	mu        sync.RWMutex
	acct      models.Account
	symbols   map[string]SymbolStatus
	candles   int64
	startedAt time.Time
	updatedAt time.Time
}

func NewStatusBoard(acct models.Account) *StatusBoard {
	return &StatusBoard{
		acct:      acct,
		symbols:   make(map[string]SymbolStatus),
		startedAt: time.Now().UTC(),
	}
}

// Publish records the account after a transition on candle c.
func (b *StatusBoard) Publish(acct models.Account, c models.Candle, tr decision.Transition) {
	st := SymbolStatus{
		Symbol:     c.Symbol,
		State:      tr.To(),
		LastClose:  c.Close,
		CandleTime: c.CloseTime,
		Synthetic:  c.Synthetic,
		Denied:     string(tr.Denied),
	}
	if tr.Scored {
		s := tr.Score
		st.Score = &s
	}

	b.mu.Lock()
	b.acct = acct
	b.symbols[c.Symbol] = st
	b.candles++
	b.updatedAt = time.Now().UTC()
	b.mu.Unlock()
}

// SetAccount replaces the account snapshot, e.g. after a restore.
func (b *StatusBoard) SetAccount(acct models.Account) {
	b.mu.Lock()
	b.acct = acct
	b.mu.Unlock()
}

func (b *StatusBoard) Account() models.Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.acct
}

// Symbols returns per-symbol status sorted by symbol.
func (b *StatusBoard) Symbols() []SymbolStatus {
	b.mu.RLock()
	out := make([]SymbolStatus, 0, len(b.symbols))
	for _, s := range b.symbols {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Processed returns how many candles were decided and when the last one was.
func (b *StatusBoard) Processed() (int64, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.candles, b.updatedAt
}

func (b *StatusBoard) StartedAt() time.Time { return b.startedAt }
