package strategy

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// Profit-taking decisions for held positions
// ---------------------------------------------------------------------------

// DecisionKind names a profit-taking alternative.
type DecisionKind string

const (
	DecisionTakeProfitNow    DecisionKind = "take_profit_now"
	DecisionHoldForTarget    DecisionKind = "hold_for_price_target"
	DecisionContinueSandwich DecisionKind = "continue_sandwich"
	DecisionDCABuy           DecisionKind = "dca_buy"
)

// ProfitAlternative is one ranked way to handle an open position.
type ProfitAlternative struct {
	Kind  DecisionKind `json:"kind"`
	Score float64      `json:"score"`

	// HoldForTarget parameters.
	TargetPrice decimal.Decimal `json:"target_price,omitempty"`
	Deadline    time.Time       `json:"deadline,omitempty"`

	// ContinueSandwich parameters.
	MaxBuys int `json:"max_buys,omitempty"`

	// DCABuy parameters.
	AmountPct int           `json:"amount_pct,omitempty"`
	Intervals int           `json:"intervals,omitempty"`
	Window    time.Duration `json:"window,omitempty"`
}

// PositionView is what the decision needs to know about a holding.
type PositionView struct {
	Token            evm.Address
	ValueUSD         decimal.Decimal
	UnrealizedPnLUSD decimal.Decimal
	CurrentPrice     decimal.Decimal
	HeldFor          time.Duration

	// SandwichProfitUSD is the average recent sandwich take on this
	// token; zero when no opportunities are flowing.
	SandwichProfitUSD decimal.Decimal
}

// DecideProfitTaking ranks the profit-taking alternatives for a position.
// riskScore is the token's normalized risk in [0,1].
func (o *Optimizer) DecideProfitTaking(pos PositionView, riskScore, aiConfidence float64) []ProfitAlternative {
	now := time.Now()
	tf := timeFactor(pos.HeldFor)
	unrealized := pos.UnrealizedPnLUSD.InexactFloat64()
	value := pos.ValueUSD.InexactFloat64()

	// The holding-duration factor boosts realising alternatives only, so
	// exits win out as a position ages past three days.
	alts := []ProfitAlternative{
		{
			Kind:  DecisionTakeProfitNow,
			Score: decisionScore(unrealized, 0.95, riskScore*0.5, tf, 0),
		},
		{
			Kind:        DecisionHoldForTarget,
			TargetPrice: pos.CurrentPrice.Mul(decimal.NewFromFloat(1.2)),
			Deadline:    now.Add(24 * time.Hour),
			Score: decisionScore(unrealized+value*0.2,
				0.35+0.3*clamp01(aiConfidence), riskScore, 1, 86400),
		},
		{
			Kind:      DecisionDCABuy,
			AmountPct: 10,
			Intervals: 5,
			Window:    72 * time.Hour,
			Score:     decisionScore(value*0.1, 0.7, riskScore*0.7, 1, 3*86400),
		},
	}

	if pos.SandwichProfitUSD.IsPositive() {
		alts = append(alts, ProfitAlternative{
			Kind:     DecisionContinueSandwich,
			MaxBuys:  3,
			Deadline: now.Add(time.Hour),
			Score:    decisionScore(pos.SandwichProfitUSD.InexactFloat64()*3, 0.6, riskScore, 1, 3600),
		})
	}

	sort.Slice(alts, func(i, j int) bool { return alts[i].Score > alts[j].Score })
	return alts
}

// decisionScore = expected_profit x success_prob x (1 - risk/2) x
// time_factor / (1 + horizon/86400).
func decisionScore(expectedProfit, successProb, risk, timeFactor, horizonSec float64) float64 {
	return expectedProfit * successProb * (1 - risk/2) * timeFactor / (1 + horizonSec/86400)
}

// timeFactor rises with holding duration so exits win out past three days.
func timeFactor(held time.Duration) float64 {
	days := held.Hours() / 24
	f := 1 + days/3
	if f > 3 {
		f = 3
	}
	return f
}
