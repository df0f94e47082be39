package decision

import (
	"errors"
	"fmt"
	"sync"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/domain/repository"
	"PaperQuant/internal/domain/service"
	"PaperQuant/internal/services/paper"
	"PaperQuant/internal/services/risk"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/metrics"
)

// Config holds entry and exit rules.
type Config struct {
	EntryThreshold float64 `yaml:"entry_threshold" default:"0.6" validate:"gte=0,lte=1"`
	ExitThreshold  float64 `yaml:"exit_threshold" default:"0.4" validate:"gte=0,lte=1"`
	TakeProfit     float64 `yaml:"tp_pct" default:"0.015" validate:"gt=0,lt=1"`
	StopLoss       float64 `yaml:"sl_pct" default:"0.009" validate:"gt=0,lt=1"`
	MaxHolding     int     `yaml:"max_holding" default:"60" validate:"gte=1"`
}

// Transition is the outcome of processing one closed candle.
type Transition struct {
	Symbol string
	Path   []models.PositionState
	Score  float64
	Scored bool
	Entry  *models.Position
	Exit   *models.Trade
	Denied risk.Reason
}

// From is the state before the candle.
func (t Transition) From() models.PositionState { return t.Path[0] }

// To is the state after the candle.
func (t Transition) To() models.PositionState { return t.Path[len(t.Path)-1] }

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m repository.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// Engine runs the per-symbol FLAT -> ENTERING -> IN_POSITION -> EXITING -> FLAT machine.
// Position state lives in the portfolio; the account and scorer are supplied per call.
// Process must be called from one goroutine.
type Engine struct {
	cfg     Config
	risk    *risk.Engine
	guard   risk.Guard
	book    *paper.Portfolio
	log     *logger.Logger
	metrics repository.Metrics

	mu      sync.Mutex
	denials map[risk.Reason]int
}

func NewEngine(cfg Config, re *risk.Engine, guard risk.Guard, book *paper.Portfolio, opts ...Option) (*Engine, error) {
	if cfg.MaxHolding < 1 || cfg.TakeProfit <= 0 || cfg.StopLoss <= 0 || cfg.StopLoss >= 1 {
		return nil, fmt.Errorf("invalid decision config %+v", cfg)
	}
	if cfg.ExitThreshold > cfg.EntryThreshold {
		return nil, fmt.Errorf("exit threshold %v above entry threshold %v", cfg.ExitThreshold, cfg.EntryThreshold)
	}
	e := &Engine{
		cfg:     cfg,
		risk:    re,
		guard:   guard,
		book:    book,
		log:     logger.Nop(),
		metrics: metrics.NewNop(),
		denials: make(map[risk.Reason]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the resting state of symbol.
func (e *Engine) State(symbol string) models.PositionState {
	if _, ok := e.book.Position(symbol); ok {
		return models.StateInPosition
	}
	return models.StateFlat
}

// Denials returns how many entries each guard reason has blocked.
func (e *Engine) Denials() map[risk.Reason]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[risk.Reason]int, len(e.denials))
	for k, v := range e.denials {
		out[k] = v
	}
	return out
}

// Process evaluates exactly one transition for the candle's symbol. In position the
// checks run stop, target, timeout, then reversal; the first that holds exits. The
// candle that closes a position never opens a new one.
func (e *Engine) Process(acct *models.Account, scorer service.Scorer, c models.Candle, fv models.FeatureVector) (Transition, error) {
	e.risk.Roll(acct, c.CloseTime)
	if _, ok := e.book.Position(c.Symbol); ok {
		return e.manage(acct, scorer, c, fv)
	}
	return e.consider(acct, scorer, c, fv)
}

func (e *Engine) manage(acct *models.Account, scorer service.Scorer, c models.Candle, fv models.FeatureVector) (Transition, error) {
	tr := Transition{Symbol: c.Symbol, Path: []models.PositionState{models.StateInPosition}}
	pos, _ := e.book.Age(c.Symbol)

	var (
		reason models.ExitReason
		price  float64
	)
	switch {
	case c.Low <= pos.StopPrice:
		reason, price = models.ExitSL, pos.StopPrice
	case c.High >= pos.TargetPrice:
		reason, price = models.ExitTP, pos.TargetPrice
	case pos.Age >= pos.MaxHolding:
		reason, price = models.ExitTimeout, c.Close
	case !fv.Partial:
		score, err := scorer.Predict(fv)
		if err != nil {
			return tr, fmt.Errorf("score %s: %w", c.Symbol, err)
		}
		tr.Score, tr.Scored = score, true
		if score <= e.cfg.ExitThreshold {
			reason, price = models.ExitReversal, c.Close
		}
	}
	if reason == "" {
		return tr, nil
	}

	tr.Path = append(tr.Path, models.StateExiting)
	trade, err := e.book.Close(c.Symbol, price, reason, c.CloseTime)
	if err != nil {
		return tr, fmt.Errorf("close %s: %w", c.Symbol, err)
	}
	e.risk.OnExit(acct, pos, trade)
	tr.Path = append(tr.Path, models.StateFlat)
	tr.Exit = &trade

	e.metrics.RecordTrade(trade.Symbol, string(trade.Reason), trade.PnL)
	e.metrics.RecordEquity(acct.Equity)
	e.log.Info("position closed",
		logger.String("symbol", trade.Symbol),
		logger.String("reason", string(trade.Reason)),
		logger.Float64("entry", trade.EntryPrice),
		logger.Float64("exit", trade.ExitPrice),
		logger.Float64("pnl", trade.PnL),
		logger.Int("age", pos.Age),
		logger.Float64("equity", acct.Equity),
	)
	return tr, nil
}

func (e *Engine) consider(acct *models.Account, scorer service.Scorer, c models.Candle, fv models.FeatureVector) (Transition, error) {
	tr := Transition{Symbol: c.Symbol, Path: []models.PositionState{models.StateFlat}}
	if fv.Partial {
		return tr, nil
	}
	score, err := scorer.Predict(fv)
	if err != nil {
		return tr, fmt.Errorf("score %s: %w", c.Symbol, err)
	}
	tr.Score, tr.Scored = score, true
	if score < e.cfg.EntryThreshold {
		return tr, nil
	}

	_, open := e.book.Position(c.Symbol)
	if ok, reason := e.guard.PermitsEntry(*acct, c.CloseTime, open); !ok {
		e.deny(&tr, reason)
		return tr, nil
	}

	entry := c.Close
	stop := entry * (1 - e.cfg.StopLoss)
	size, err := e.risk.SizeFor(entry, stop, acct)
	if err != nil {
		reason := risk.ReasonSizeRejected
		if errors.Is(err, risk.ErrNonPositiveEquity) {
			reason = risk.ReasonNoEquity
		}
		e.deny(&tr, reason)
		e.log.Debug("sizing rejected", logger.String("symbol", c.Symbol), logger.Error(err))
		return tr, nil
	}

	tr.Path = append(tr.Path, models.StateEntering)
	pos := models.Position{
		Symbol:      c.Symbol,
		EntryPrice:  entry,
		EntryTime:   c.CloseTime,
		Size:        size,
		StopPrice:   stop,
		TargetPrice: entry * (1 + e.cfg.TakeProfit),
		MaxHolding:  e.cfg.MaxHolding,
	}
	if err := e.book.Open(pos); err != nil {
		tr.Path = append(tr.Path, models.StateFlat)
		return tr, fmt.Errorf("open %s: %w", c.Symbol, err)
	}
	e.risk.OnEntry(acct, pos)
	tr.Path = append(tr.Path, models.StateInPosition)
	tr.Entry = &pos

	e.log.Info("position opened",
		logger.String("symbol", pos.Symbol),
		logger.Float64("score", score),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("size", pos.Size),
		logger.Float64("stop", pos.StopPrice),
		logger.Float64("target", pos.TargetPrice),
	)
	return tr, nil
}

func (e *Engine) deny(tr *Transition, reason risk.Reason) {
	tr.Denied = reason
	e.mu.Lock()
	e.denials[reason]++
	e.mu.Unlock()
	e.metrics.RecordGuardDenial(string(reason))
	e.log.Info("entry denied", logger.String("symbol", tr.Symbol), logger.String("reason", string(reason)))
}
