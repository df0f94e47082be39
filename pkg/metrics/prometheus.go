package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks        *prometheus.CounterVec
	candles      *prometheus.CounterVec
	lateTicks    *prometheus.CounterVec
	guardDenials *prometheus.CounterVec
	trades       *prometheus.CounterVec
	realizedPnL  *prometheus.CounterVec
	equity       prometheus.Gauge
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered with reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_ticks_total",
				Help: "Ticks received from the feed",
			},
			[]string{"symbol"},
		),
		candles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_candles_total",
				Help: "Closed candles emitted by the aggregator",
			},
			[]string{"symbol", "synthetic"},
		),
		lateTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_late_ticks_total",
				Help: "Late or out-of-order ticks dropped by the aggregator",
			},
			[]string{"symbol"},
		),
		guardDenials: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_guard_denials_total",
				Help: "Entry signals blocked by the trade guard or sizing",
			},
			[]string{"reason"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_trades_total",
				Help: "Closed paper trades",
			},
			[]string{"symbol", "reason"},
		),
		realizedPnL: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_realized_pnl_abs_total",
				Help: "Absolute realized PnL split by sign",
			},
			[]string{"sign"},
		),
		equity: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "paperquant_equity",
				Help: "Paper account equity",
			},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperquant_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperquant_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTick(symbol string) {
	r.ticks.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordCandle(symbol string, synthetic bool) {
	s := "false"
	if synthetic {
		s = "true"
	}
	r.candles.WithLabelValues(symbol, s).Inc()
}

func (r *Recorder) RecordLateTick(symbol string) {
	r.lateTicks.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordGuardDenial(reason string) {
	r.guardDenials.WithLabelValues(reason).Inc()
}

// RecordTrade records a closed trade and its PnL.
func (r *Recorder) RecordTrade(symbol, reason string, pnl float64) {
	r.trades.WithLabelValues(symbol, reason).Inc()
	if pnl >= 0 {
		r.realizedPnL.WithLabelValues("profit").Add(pnl)
	} else {
		r.realizedPnL.WithLabelValues("loss").Add(-pnl)
	}
}

func (r *Recorder) RecordEquity(v float64) {
	r.equity.Set(v)
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
