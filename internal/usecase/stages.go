package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/domain/service"
	"PaperQuant/internal/services/candles"
	"PaperQuant/internal/services/decision"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/labeling"
	"PaperQuant/internal/services/paper"
	"PaperQuant/internal/services/risk"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/internal/services/walkforward"
	"PaperQuant/pkg/logger"
)

// Collector backfills history from a REST candle source.
type Collector struct {
	src      drepo.CandleSource
	store    drepo.CandleStore
	log      *logger.Logger
	pageSize int
}

// NewCollector creates a collector. store may be nil.
func NewCollector(src drepo.CandleSource, store drepo.CandleStore, log *logger.Logger) *Collector {
	return &Collector{src: src, store: store, log: log, pageSize: 200}
}

// Collect pages backwards from until and returns an ordered, gap-filled series
// covering the given number of days.
func (c *Collector) Collect(ctx context.Context, symbol string, iv drepo.Interval, days int, until time.Time) ([]models.Candle, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be >= 1, got %d", days)
	}
	want := days * 24 * 60 / iv.Minutes()
	before := until.UTC()
	var raw []models.Candle
	for len(raw) < want {
		n := c.pageSize
		if rest := want - len(raw); rest < n {
			n = rest
		}
		page, err := c.src.CandlesBefore(ctx, symbol, iv, before, n)
		if err != nil {
			return nil, fmt.Errorf("fetch %s before %s: %w", symbol, before.Format(time.RFC3339), err)
		}
		if len(page) == 0 {
			break
		}
		raw = append(raw, page...)
		oldest := page[0].OpenTime
		for _, cd := range page {
			if cd.OpenTime.Before(oldest) {
				oldest = cd.OpenTime
			}
		}
		if !oldest.Before(before) {
			break
		}
		before = oldest
		c.log.Debug("collected page", logger.String("symbol", symbol), logger.Int("total", len(raw)), logger.Time("oldest", oldest))
	}

	series, err := candles.FillGaps(dedupe(raw), iv.Duration())
	if err != nil {
		return nil, fmt.Errorf("fill gaps: %w", err)
	}
	synthetic := 0
	for _, cd := range series {
		if cd.Synthetic {
			synthetic++
		}
	}
	c.log.Info("collected series",
		logger.String("symbol", symbol),
		logger.Int("candles", len(series)),
		logger.Int("synthetic", synthetic),
	)

	if c.store != nil && len(series) > 0 {
		if err := c.store.StoreCandles(ctx, series); err != nil {
			return nil, fmt.Errorf("store candles: %w", err)
		}
	}
	return series, nil
}

// dedupe sorts by open time and keeps the last candle seen for each open time.
func dedupe(cs []models.Candle) []models.Candle {
	byOpen := make(map[int64]models.Candle, len(cs))
	for _, c := range cs {
		byOpen[c.OpenTime.UnixNano()] = c
	}
	out := make([]models.Candle, 0, len(byOpen))
	for _, c := range byOpen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

// Featurize attaches a feature vector to every candle. Rows whose history is
// shorter than the lookback keep a partial vector.
func Featurize(series []models.Candle, interval time.Duration) ([]models.SeriesRow, error) {
	fvs, err := features.ComputeSeries(series, interval)
	if err != nil {
		return nil, err
	}
	rows := make([]models.SeriesRow, len(series))
	for i := range series {
		fv := fvs[i]
		rows[i] = models.SeriesRow{Candle: series[i], Features: &fv}
	}
	return rows, nil
}

// LabelRows labels the featurized rows and keeps only rows that have both a
// complete feature vector and a label. Each symbol is labeled against its own
// future; the output keeps the input order.
func LabelRows(rows []models.SeriesRow, p labeling.Params) ([]models.SeriesRow, error) {
	bySymbol := make(map[string][]int)
	for i, r := range rows {
		bySymbol[r.Candle.Symbol] = append(bySymbol[r.Candle.Symbol], i)
	}

	labels := make(map[int]models.Label, len(rows))
	for symbol, idx := range bySymbol {
		series := make([]models.Candle, len(idx))
		for k, i := range idx {
			series[k] = rows[i].Candle
		}
		labeled, err := labeling.LabelSeries(series, p)
		if err != nil {
			return nil, fmt.Errorf("label %s: %w", symbol, err)
		}
		for _, l := range labeled {
			labels[idx[l.Index]] = l.Label
		}
	}

	out := make([]models.SeriesRow, 0, len(labels))
	for i, r := range rows {
		lbl, ok := labels[i]
		if !ok || r.Features == nil || r.Features.Partial {
			continue
		}
		r.Label = &lbl
		out = append(out, r)
	}
	return out, nil
}

// TrainerConfig holds walk-forward settings.
type TrainerConfig struct {
	Folds   int              `yaml:"folds" default:"5" validate:"gte=1"`
	Embargo int              `yaml:"embargo" default:"60" validate:"gte=0"`
	Mode    walkforward.Mode `yaml:"mode" default:"best_fold" validate:"oneof=best_fold refit"`
	Workers int              `yaml:"workers" default:"4" validate:"gte=1"`
}

// Trainer selects a champion scorer by walk-forward validation.
type Trainer struct {
	cfg     TrainerConfig
	fit     service.FitFunc
	metric  service.MetricFunc
	log     *logger.Logger
	horizon time.Duration
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithLabelHorizon purges, per fold, every training row whose label window
// (close time plus d) reaches the first validation close. Use max_holding
// times the candle interval.
func WithLabelHorizon(d time.Duration) TrainerOption {
	return func(t *Trainer) { t.horizon = d }
}

func NewTrainer(cfg TrainerConfig, fit service.FitFunc, metric service.MetricFunc, log *logger.Logger, opts ...TrainerOption) *Trainer {
	t := &Trainer{cfg: cfg, fit: fit, metric: metric, log: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train expects labeled rows in time order.
func (t *Trainer) Train(ctx context.Context, rows []models.SeriesRow) (*walkforward.Champion, error) {
	data := walkforward.Dataset{
		Rows:   make([]models.FeatureVector, 0, len(rows)),
		Labels: make([]models.Label, 0, len(rows)),
	}
	for i, r := range rows {
		if r.Features == nil || r.Features.Partial || r.Label == nil {
			return nil, fmt.Errorf("row %d is not a complete labeled row", i)
		}
		data.Rows = append(data.Rows, *r.Features)
		data.Labels = append(data.Labels, *r.Label)
	}

	folds, err := walkforward.Splitter{Folds: t.cfg.Folds, Embargo: t.cfg.Embargo}.Split(len(rows))
	if err != nil {
		return nil, err
	}
	if t.horizon > 0 {
		closes := make([]time.Time, len(rows))
		for i, r := range rows {
			closes[i] = r.Candle.CloseTime
		}
		if folds, err = walkforward.PurgeByTime(folds, closes, t.horizon); err != nil {
			return nil, err
		}
	}
	champ, err := walkforward.SelectChampion(ctx, data, folds, t.fit, t.metric,
		walkforward.WithMode(t.cfg.Mode),
		walkforward.WithWorkers(t.cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("select champion: %w", err)
	}
	for _, f := range champ.Folds {
		t.log.Info("fold validated",
			logger.Int("fold", f.Fold.Index),
			logger.Int("train", f.Fold.Train.Len()),
			logger.Int("validation", f.Fold.Validation.Len()),
			logger.Float64("score", f.Score),
		)
	}
	t.log.Info("champion selected",
		logger.String("mode", string(champ.Mode)),
		logger.Int("best_fold", champ.BestFold),
		logger.Float64("best_score", champ.BestScore),
		logger.Float64("mean_score", champ.MeanScore),
	)
	return champ, nil
}

// ReplayResult is the outcome of running a series through the paper trader.
type ReplayResult struct {
	Trades  []models.Trade      `json:"trades"`
	Stats   paper.Stats         `json:"stats"`
	Denials map[risk.Reason]int `json:"denials"`
	Account models.Account      `json:"account"`
	Open    []models.Position   `json:"open_positions"`
}

// Replayer runs persisted candles through the live decision path.
type Replayer struct {
	decision decision.Config
	risk     risk.Config
	feeRate  float64
	interval time.Duration
	log      *logger.Logger
	metrics  drepo.Metrics
	ids      func() string
}

func NewReplayer(dc decision.Config, rc risk.Config, feeRate float64, interval time.Duration, log *logger.Logger, m drepo.Metrics) *Replayer {
	return &Replayer{decision: dc, risk: rc, feeRate: feeRate, interval: interval, log: log, metrics: m}
}

// WithTradeIDs sets the trade id generator.
func (r *Replayer) WithTradeIDs(gen func() string) *Replayer {
	r.ids = gen
	return r
}

// Replay processes series candle by candle. Multiple symbols may be interleaved
// as long as each symbol's candles are in time order.
func (r *Replayer) Replay(ctx context.Context, series []models.Candle, scorer service.Scorer) (*ReplayResult, error) {
	if err := scoring.CheckFeatures(scorer, features.Names()); err != nil {
		return nil, err
	}
	re, err := risk.NewEngine(r.risk)
	if err != nil {
		return nil, err
	}
	var popts []paper.Option
	if r.ids != nil {
		popts = append(popts, paper.WithIDs(r.ids))
	}
	book := paper.New(r.feeRate, popts...)
	eng, err := decision.NewEngine(r.decision, re, risk.NewGuard(r.risk), book,
		decision.WithLogger(r.log),
		decision.WithMetrics(r.metrics),
	)
	if err != nil {
		return nil, err
	}
	fc := features.NewComputer(r.interval)
	acct := models.NewAccount(r.risk.StartingEquity)

	for i, c := range series {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fv, err := fc.Update(c)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		if _, err := eng.Process(acct, scorer, c, fv); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}

	trades := book.Trades()
	return &ReplayResult{
		Trades:  trades,
		Stats:   paper.ComputeStats(r.risk.StartingEquity, trades),
		Denials: eng.Denials(),
		Account: *acct,
		Open:    book.Positions(),
	}, nil
}
