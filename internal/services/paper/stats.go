package paper

import (
	"time"

	"PaperQuant/internal/domain/models"
)

// EquityPoint is the account equity right after a trade closed.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// EquityCurve replays trades in ledger order from the starting equity.
func EquityCurve(start float64, trades []models.Trade) []EquityPoint {
	out := make([]EquityPoint, 0, len(trades))
	eq := start
	for _, t := range trades {
		eq += t.PnL
		out = append(out, EquityPoint{Time: t.ExitTime, Equity: eq})
	}
	return out
}

// Stats summarizes a trade ledger.
type Stats struct {
	Trades         int                       `json:"trades"`
	Wins           int                       `json:"wins"`
	Losses         int                       `json:"losses"`
	WinRate        float64                   `json:"win_rate"`
	TotalPnL       float64                   `json:"total_pnl"`
	AvgPnL         float64                   `json:"avg_pnl"`
	Fees           float64                   `json:"fees"`
	StartEquity    float64                   `json:"start_equity"`
	FinalEquity    float64                   `json:"final_equity"`
	ReturnPct      float64                   `json:"return_pct"`
	MaxDrawdownPct float64                   `json:"max_drawdown_pct"`
	ByReason       map[models.ExitReason]int `json:"by_reason"`
}

// ComputeStats derives performance figures from the ledger alone.
func ComputeStats(start float64, trades []models.Trade) Stats {
	s := Stats{
		Trades:      len(trades),
		StartEquity: start,
		FinalEquity: start,
		ByReason:    make(map[models.ExitReason]int),
	}
	peak := start
	for _, p := range EquityCurve(start, trades) {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > s.MaxDrawdownPct {
				s.MaxDrawdownPct = dd
			}
		}
		s.FinalEquity = p.Equity
	}
	for _, t := range trades {
		s.TotalPnL += t.PnL
		s.Fees += t.Fees
		s.ByReason[t.Reason]++
		switch {
		case t.PnL > 0:
			s.Wins++
		case t.PnL < 0:
			s.Losses++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
		s.AvgPnL = s.TotalPnL / float64(s.Trades)
	}
	if start > 0 {
		s.ReturnPct = (s.FinalEquity - start) / start * 100
	}
	return s
}
