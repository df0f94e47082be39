package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"PaperQuant/internal/domain/models"
	"PaperQuant/pkg/util"
)

var (
	// ErrNonPositiveEquity rejects sizing on an account with nothing left to risk.
	ErrNonPositiveEquity = errors.New("non-positive equity")
	// ErrSizeRejected is returned when the size rounds to zero or the order is below the minimum notional.
	ErrSizeRejected = errors.New("size rejected")
)

// Config holds sizing and guard limits. Fractions are of current equity.
type Config struct {
	StartingEquity       float64       `yaml:"starting_equity" default:"1000000" validate:"gt=0"`
	RiskFraction         float64       `yaml:"risk_fraction" default:"0.003" validate:"gt=0,lte=1"`
	MaxExposureFraction  float64       `yaml:"max_exposure_fraction" default:"0.1" validate:"gt=0,lte=1"`
	MinTradableUnit      float64       `yaml:"min_tradable_unit" default:"0.00000001" validate:"gt=0"`
	MinNotional          float64       `yaml:"min_notional" default:"5000" validate:"gte=0"`
	MaxDailyLossFraction float64       `yaml:"max_daily_loss_fraction" default:"0.03" validate:"gt=0,lte=1"`
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses" default:"5" validate:"gte=1"`
	Cooldown             time.Duration `yaml:"cooldown" default:"60m" validate:"gte=0"`
}

// Engine sizes positions and keeps the account's risk bookkeeping.
// It holds no account state of its own; every call receives the account.
type Engine struct {
	cfg  Config
	unit decimal.Decimal
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.RiskFraction <= 0 || cfg.MaxExposureFraction <= 0 || cfg.MinTradableUnit <= 0 {
		return nil, fmt.Errorf("invalid risk config: risk=%v exposure=%v unit=%v",
			cfg.RiskFraction, cfg.MaxExposureFraction, cfg.MinTradableUnit)
	}
	return &Engine{cfg: cfg, unit: decimal.NewFromFloat(cfg.MinTradableUnit)}, nil
}

// SizeFor returns the position size risking RiskFraction of equity between entry and stop,
// capped at MaxExposureFraction of equity in notional and rounded down to the tradable unit.
func (e *Engine) SizeFor(entry, stop float64, acct *models.Account) (float64, error) {
	if acct.Equity <= 0 {
		return 0, ErrNonPositiveEquity
	}
	dist := math.Abs(entry - stop)
	if entry <= 0 || dist == 0 {
		return 0, fmt.Errorf("%w: entry %v stop %v", ErrSizeRejected, entry, stop)
	}

	size := acct.Equity * e.cfg.RiskFraction / dist
	maxNotional := acct.Equity * e.cfg.MaxExposureFraction
	if size*entry > maxNotional {
		size = maxNotional / entry
	}

	d := decimal.NewFromFloat(size).Div(e.unit).Floor().Mul(e.unit)
	rounded, _ := d.Float64()
	for rounded > 0 && rounded*entry > maxNotional {
		d = d.Sub(e.unit)
		rounded, _ = d.Float64()
	}
	if rounded <= 0 {
		return 0, fmt.Errorf("%w: size %v below unit %v", ErrSizeRejected, size, e.cfg.MinTradableUnit)
	}
	if rounded*entry < e.cfg.MinNotional {
		return 0, fmt.Errorf("%w: notional %.2f below minimum %.2f", ErrSizeRejected, rounded*entry, e.cfg.MinNotional)
	}
	return rounded, nil
}

// OnEntry adds the position's stop risk to open risk.
func (e *Engine) OnEntry(acct *models.Account, pos models.Position) {
	acct.OpenRisk += pos.Risk()
}

// OnExit releases the position's open risk and books the trade result.
func (e *Engine) OnExit(acct *models.Account, pos models.Position, t models.Trade) {
	acct.OpenRisk -= pos.Risk()
	if acct.OpenRisk < 1e-9 {
		acct.OpenRisk = 0
	}
	e.Roll(acct, t.ExitTime)
	acct.Equity += t.PnL
	if t.PnL < 0 {
		acct.DailyRealizedLoss -= t.PnL
		acct.ConsecutiveLosses++
		acct.LastLossTime = t.ExitTime
		return
	}
	acct.ConsecutiveLosses = 0
}

// Roll resets the daily loss when now falls on a later UTC day than the account's.
func (e *Engine) Roll(acct *models.Account, now time.Time) {
	day := util.UTCDay(now)
	if day.After(acct.Day) {
		if !acct.Day.IsZero() {
			acct.DailyRealizedLoss = 0
		}
		acct.Day = day
	}
}
