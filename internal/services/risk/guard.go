package risk

import (
	"time"

	"PaperQuant/internal/domain/models"
	"PaperQuant/pkg/util"
)

// Reason explains a guard decision.
type Reason string

const (
	ReasonOK           Reason = "ok"
	ReasonCooldown     Reason = "loss_cooldown"
	ReasonDailyLoss    Reason = "daily_loss_limit"
	ReasonPositionOpen Reason = "position_open"
	// sizing outcomes reported through the same counter
	ReasonSizeRejected Reason = "size_rejected"
	ReasonNoEquity     Reason = "non_positive_equity"
)

// Guard vetoes model-driven entries under adverse account conditions.
type Guard struct {
	maxConsecutive int
	cooldown       time.Duration
	maxDailyLoss   float64
}

func NewGuard(cfg Config) Guard {
	return Guard{
		maxConsecutive: cfg.MaxConsecutiveLosses,
		cooldown:       cfg.Cooldown,
		maxDailyLoss:   cfg.MaxDailyLossFraction,
	}
}

// PermitsEntry is a pure predicate over the account at now. A daily loss booked
// on an earlier UTC day than now no longer counts.
func (g Guard) PermitsEntry(acct models.Account, now time.Time, positionOpen bool) (bool, Reason) {
	if positionOpen {
		return false, ReasonPositionOpen
	}
	if acct.ConsecutiveLosses >= g.maxConsecutive && now.Sub(acct.LastLossTime) < g.cooldown {
		return false, ReasonCooldown
	}
	daily := acct.DailyRealizedLoss
	if util.UTCDay(now).After(acct.Day) {
		daily = 0
	}
	if daily >= g.maxDailyLoss*acct.Equity {
		return false, ReasonDailyLoss
	}
	return true, ReasonOK
}
