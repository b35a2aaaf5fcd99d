package strategy

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/gas"
)

// ---------------------------------------------------------------------------
// Nash gas selection — best response to the observed competitor field
// ---------------------------------------------------------------------------

// GasStrategy labels how hard a competitor bids over the base fee.
type GasStrategy int

const (
	StrategyConservative GasStrategy = iota
	StrategyModerate
	StrategyAggressive
	StrategyVeryAggressive
)

func (s GasStrategy) String() string {
	switch s {
	case StrategyConservative:
		return "conservative"
	case StrategyModerate:
		return "moderate"
	case StrategyAggressive:
		return "aggressive"
	default:
		return "very_aggressive"
	}
}

// Best-response multipliers per competitor regime.
const (
	nashVeryAggressivePlus = 1.65 // very aggressive, plus 10%
	nashModeratePlus       = 1.15
	nashAggressive         = 1.2
	competitorWindowSize   = 200
)

// ClassifyGasStrategy labels one observed bid against the base fee.
func ClassifyGasStrategy(bidGwei, baseGwei decimal.Decimal) GasStrategy {
	if !baseGwei.IsPositive() {
		return StrategyModerate
	}
	mult := bidGwei.Div(baseGwei).InexactFloat64()
	switch {
	case mult < 1.1:
		return StrategyConservative
	case mult < 1.2:
		return StrategyModerate
	case mult < 1.5:
		return StrategyAggressive
	default:
		return StrategyVeryAggressive
	}
}

// ObserveCompetitor records a competitor bid from a recent block.
func (o *Optimizer) ObserveCompetitor(bidGwei, baseGwei decimal.Decimal) {
	label := ClassifyGasStrategy(bidGwei, baseGwei)
	o.mu.Lock()
	o.competitorWindow = append(o.competitorWindow, label)
	if len(o.competitorWindow) > competitorWindowSize {
		o.competitorWindow = o.competitorWindow[len(o.competitorWindow)-competitorWindowSize:]
	}
	o.mu.Unlock()
}

// NashMultiplier picks the best-response gas multiplier: outbid a field
// of aggressors, save gas against a conservative one, scale by congestion
// and cap by the hard limit.
func (o *Optimizer) NashMultiplier(congestion gas.Congestion) float64 {
	o.mu.Lock()
	window := o.competitorWindow
	var aggressive, conservative int
	for _, s := range window {
		switch s {
		case StrategyAggressive, StrategyVeryAggressive:
			aggressive++
		case StrategyConservative:
			conservative++
		}
	}
	total := len(window)
	o.mu.Unlock()

	mult := nashAggressive
	if total > 0 {
		aggRatio := float64(aggressive) / float64(total)
		consRatio := float64(conservative) / float64(total)
		switch {
		case aggRatio >= 0.7:
			mult = nashVeryAggressivePlus
		case consRatio >= 0.6:
			mult = nashModeratePlus
		}
	}

	congestionFactor := 1 + (float64(congestion.Index())-5)/50
	mult *= congestionFactor
	if mult > o.config.MaxGasMultiplier {
		mult = o.config.MaxGasMultiplier
	}

	log.Debug().
		Int("competitors", total).
		Int("aggressive", aggressive).
		Int("conservative", conservative).
		Float64("multiplier", mult).
		Msg("strategy: nash gas multiplier")
	return mult
}

// NashGasPrice applies the Nash multiplier to a base gas price.
func (o *Optimizer) NashGasPrice(baseGwei decimal.Decimal, congestion gas.Congestion) decimal.Decimal {
	return baseGwei.Mul(decimal.NewFromFloat(o.NashMultiplier(congestion)))
}
