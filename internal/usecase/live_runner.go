package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/domain/service"
	mid "PaperQuant/internal/middleware"
	"PaperQuant/internal/services/candles"
	"PaperQuant/internal/services/decision"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/paper"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/metrics"
)

// LiveConfig tunes the live loop.
type LiveConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval" default:"1s"`
	FlushGrace     time.Duration `yaml:"flush_grace" default:"2s"`
	CandleQueue    int           `yaml:"candle_queue" default:"256" validate:"gte=1"`
	PersistTimeout time.Duration `yaml:"persist_timeout" default:"5s"`
}

// LiveOption configures a LiveRunner.
type LiveOption func(*LiveRunner)

func WithCandleStore(s drepo.CandleStore) LiveOption {
	return func(r *LiveRunner) { r.candleStore = s }
}

// WithLedgers adds trade ledgers; every closed trade is sent to each of them.
func WithLedgers(l ...drepo.TradeLedger) LiveOption {
	return func(r *LiveRunner) { r.ledgers = append(r.ledgers, l...) }
}

func WithStateStore(s drepo.StateStore) LiveOption {
	return func(r *LiveRunner) { r.state = s }
}

func WithLiveLogger(l *logger.Logger) LiveOption {
	return func(r *LiveRunner) { r.log = l }
}

func WithLiveMetrics(m drepo.Metrics) LiveOption {
	return func(r *LiveRunner) { r.metrics = m }
}

// WithClock overrides time.Now for flush decisions.
func WithClock(now func() time.Time) LiveOption {
	return func(r *LiveRunner) { r.now = now }
}

// LiveRunner wires feed -> tick pipeline -> aggregator -> features -> scorer ->
// decision engine -> sinks. The aggregator and the decision loop each run on one
// goroutine; the account is only touched by the decision loop.
type LiveRunner struct {
	cfg    LiveConfig
	feed   TickFeed
	pipe   *mid.TickPipeline
	agg    *candles.Aggregator
	fc     *features.Computer
	engine *decision.Engine
	book   *paper.Portfolio
	scorer service.Scorer
	acct   *models.Account
	board  *StatusBoard

	candleStore drepo.CandleStore
	ledgers     []drepo.TradeLedger
	state       drepo.StateStore
	log         *logger.Logger
	metrics     drepo.Metrics
	now         func() time.Time
}

func NewLiveRunner(
	cfg LiveConfig,
	feed TickFeed,
	pipe *mid.TickPipeline,
	agg *candles.Aggregator,
	fc *features.Computer,
	engine *decision.Engine,
	book *paper.Portfolio,
	scorer service.Scorer,
	acct *models.Account,
	board *StatusBoard,
	opts ...LiveOption,
) *LiveRunner {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.CandleQueue <= 0 {
		cfg.CandleQueue = 256
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	r := &LiveRunner{
		cfg:     cfg,
		feed:    feed,
		pipe:    pipe,
		agg:     agg,
		fc:      fc,
		engine:  engine,
		book:    book,
		scorer:  scorer,
		acct:    acct,
		board:   board,
		log:     logger.Nop(),
		metrics: metrics.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore loads the last checkpoint, if any, into the account and portfolio.
func (r *LiveRunner) Restore(ctx context.Context) (bool, error) {
	if r.state == nil {
		return false, nil
	}
	snap, ok, err := r.state.LoadState(ctx)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := r.book.Restore(snap.Positions); err != nil {
		return false, fmt.Errorf("restore positions: %w", err)
	}
	*r.acct = snap.Account
	r.board.SetAccount(*r.acct)
	r.log.Info("state restored",
		logger.Float64("equity", r.acct.Equity),
		logger.Int("positions", len(snap.Positions)),
		logger.Time("saved_at", snap.SavedAt),
	)
	return true, nil
}

// Run blocks until ctx is cancelled or a stage fails. On cancellation the ticks
// and candles already queued are processed before Run returns.
func (r *LiveRunner) Run(ctx context.Context) error {
	if err := scoring.CheckFeatures(r.scorer, features.Names()); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	candleCh := make(chan models.Candle, r.cfg.CandleQueue)
	decided := make(chan struct{})

	g.Go(func() error {
		defer r.pipe.Close()
		err := r.feed.Run(gctx, r.pipe)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("feed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer close(candleCh)
		return r.aggregate(candleCh, decided)
	})

	g.Go(func() error {
		defer close(decided)
		for c := range candleCh {
			if err := r.step(c); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	r.log.Info("live loop stopped",
		logger.Float64("equity", r.acct.Equity),
		logger.Int("open_positions", len(r.book.Positions())),
		logger.Int("trades", len(r.book.Trades())),
	)
	return err
}

// aggregate owns the open candles. It returns once the pipeline is drained or
// the decision loop has quit.
func (r *LiveRunner) aggregate(out chan<- models.Candle, decided <-chan struct{}) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	emit := func(cs []models.Candle) bool {
		for _, c := range cs {
			select {
			case out <- c:
			case <-decided:
				return false
			}
		}
		return true
	}

	items := r.pipe.Items()
	for {
		select {
		case <-decided:
			return nil
		case it, ok := <-items:
			if !ok {
				emit(r.agg.FlushAll(r.now().Add(-r.cfg.FlushGrace)))
				return nil
			}
			if it.Resumed {
				held := r.agg.ResetAll()
				r.log.Info("feed resumed, open candles discarded", logger.Int("emitted", len(held)))
				if !emit(held) {
					return nil
				}
				continue
			}
			closed, err := r.agg.Ingest(it.Tick)
			switch {
			case errors.Is(err, candles.ErrLateTick):
				r.log.Debug("late tick dropped",
					logger.String("symbol", it.Tick.Symbol),
					logger.Time("ts", it.Tick.Timestamp),
				)
				continue
			case err != nil:
				r.metrics.RecordError("aggregate")
				r.log.Warn("tick rejected", logger.Error(err))
				continue
			}
			if !emit(closed) {
				return nil
			}
		case <-ticker.C:
			if !emit(r.agg.FlushAll(r.now().Add(-r.cfg.FlushGrace))) {
				return nil
			}
		}
	}
}

// step runs one closed candle through features, scoring and the state machine.
func (r *LiveRunner) step(c models.Candle) error {
	start := time.Now()
	fv, err := r.fc.Update(c)
	if errors.Is(err, features.ErrOutOfOrder) {
		r.log.Warn("candle out of order", logger.String("symbol", c.Symbol), logger.Time("close_time", c.CloseTime))
		return nil
	}
	if err != nil {
		return fmt.Errorf("features %s: %w", c.Symbol, err)
	}

	tr, err := r.engine.Process(r.acct, r.scorer, c, fv)
	if err != nil {
		return fmt.Errorf("decide %s: %w", c.Symbol, err)
	}

	r.persist(c, tr)
	r.board.Publish(*r.acct, c, tr)
	r.metrics.RecordEquity(r.acct.Equity)
	r.metrics.RecordLatency("decision", time.Since(start).Seconds())
	return nil
}

// persist writes to the sinks. Sink failures are logged; paper state in memory
// stays authoritative.
func (r *LiveRunner) persist(c models.Candle, tr decision.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()

	if r.candleStore != nil {
		if err := r.candleStore.StoreCandles(ctx, []models.Candle{c}); err != nil {
			r.sinkError("candle_store", err)
		}
	}
	if tr.Exit != nil {
		for _, l := range r.ledgers {
			if err := l.RecordTrade(ctx, *tr.Exit); err != nil {
				r.sinkError("ledger", err)
			}
		}
	}
	positions := r.book.Positions()
	if r.state != nil && (tr.Entry != nil || tr.Exit != nil || len(positions) > 0) {
		snap := models.Snapshot{Account: *r.acct, Positions: positions, SavedAt: time.Now().UTC()}
		if err := r.state.SaveState(ctx, snap); err != nil {
			r.sinkError("state_store", err)
		}
	}
}

func (r *LiveRunner) sinkError(sink string, err error) {
	r.metrics.RecordError(sink)
	r.log.Error("sink write failed", logger.String("sink", sink), logger.Error(err))
}
