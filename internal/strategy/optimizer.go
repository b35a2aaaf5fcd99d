package strategy

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/gas"
)

// ---------------------------------------------------------------------------
// Strategy Optimizer — Monte-Carlo scenario scoring and Nash gas selection
// ---------------------------------------------------------------------------

// RiskTolerance sets how much failure probability the operator accepts.
type RiskTolerance int

const (
	RiskVeryLow RiskTolerance = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskVeryHigh
)

// Tau returns the minimum success probability a scenario must clear.
func (r RiskTolerance) Tau() float64 {
	switch r {
	case RiskVeryLow:
		return 0.9
	case RiskLow:
		return 0.8
	case RiskMedium:
		return 0.7
	case RiskHigh:
		return 0.6
	default:
		return 0.5
	}
}

func (r RiskTolerance) String() string {
	switch r {
	case RiskVeryLow:
		return "very_low"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "very_high"
	}
}

// ParseRiskTolerance accepts both config spellings, "VeryLow" and
// "very_low".
func ParseRiskTolerance(s string) (RiskTolerance, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "verylow":
		return RiskVeryLow, nil
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "veryhigh":
		return RiskVeryHigh, nil
	default:
		return RiskMedium, errs.New(errs.ConfigInvalid, "unknown risk tolerance "+s)
	}
}

// Config configures the optimizer.
type Config struct {
	// Trials is the Monte-Carlo sample count per scenario.
	Trials int `yaml:"trials"`

	// MaxGasMultiplier is the hard cap; scenarios above it are pruned.
	MaxGasMultiplier float64 `yaml:"max_gas_multiplier"`

	// GasLimitPerLeg is the fixed per-transaction gas estimate.
	GasLimitPerLeg uint64 `yaml:"gas_limit_per_leg"`

	// PriceImpactMean and PriceImpactStd parameterise the sampled
	// front-run price impact.
	PriceImpactMean float64 `yaml:"price_impact_mean"`
	PriceImpactStd  float64 `yaml:"price_impact_std"`

	// CompetitionStd spreads the sampled competitor pressure around the
	// observed mean.
	CompetitionStd float64 `yaml:"competition_std"`

	// MinProfitUSD is the floor under which a plan is not worth executing.
	MinProfitUSD decimal.Decimal `yaml:"min_profit_usd"`

	// Seed fixes the RNG for reproducible runs; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Trials:           1000,
		MaxGasMultiplier: 1.5,
		GasLimitPerLeg:   250_000,
		PriceImpactMean:  0.01,
		PriceImpactStd:   0.005,
		CompetitionStd:   0.2,
		MinProfitUSD:     decimal.NewFromInt(5),
	}
}

// Scenario is one discrete plan to score.
type Scenario struct {
	GasMultiplier   float64 `json:"gas_multiplier"`
	AmountFraction  int     `json:"amount_fraction_pct"`
	UsePrivateRelay bool    `json:"use_private_relay"`
}

// SimulationResult aggregates one scenario's trials.
type SimulationResult struct {
	Scenario          Scenario        `json:"scenario"`
	SuccessProb       float64         `json:"success_prob"`
	ExpectedProfitUSD decimal.Decimal `json:"expected_profit_usd"`
	WorstCaseUSD      decimal.Decimal `json:"worst_case_usd"`
	BestCaseUSD       decimal.Decimal `json:"best_case_usd"`
	// P5USD is the 5th-percentile trial outcome, a tail-risk figure the
	// min alone overstates.
	P5USD  decimal.Decimal `json:"p5_usd"`
	Trials int             `json:"trials"`
}

// SimulationInput is the observed market state a simulation runs against.
type SimulationInput struct {
	VictimAmountUSD decimal.Decimal
	BaseGasGwei     decimal.Decimal
	NativePriceUSD  decimal.Decimal
	Congestion      gas.Congestion
	// CompetitorPressure is the observed competitor intensity in [0,1].
	CompetitorPressure float64
}

var (
	gasMultiplierGrid  = []float64{1.05, 1.1, 1.15, 1.2, 1.3, 1.4, 1.5}
	amountFractionGrid = []int{20, 30, 40, 50, 60}
)

// Optimizer scores scenario grids with Monte-Carlo trials and picks gas
// postures against the observed competitor field.
type Optimizer struct {
	config Config

	mu  sync.Mutex
	rng *rand.Rand

	// Rolling window of competitor gas strategy labels from recent blocks.
	competitorWindow []GasStrategy

	simulations atomic.Int64
}

// NewOptimizer creates a strategy optimizer.
func NewOptimizer(config Config) *Optimizer {
	if config.Trials <= 0 {
		config.Trials = 1000
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Optimizer{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// GenerateScenarios builds the pruned scenario grid. Private relay
// variants are only generated when congestion is High or worse.
func (o *Optimizer) GenerateScenarios(congestion gas.Congestion) []Scenario {
	relayOptions := []bool{false}
	if congestion >= gas.CongestionHigh {
		relayOptions = []bool{false, true}
	}

	out := make([]Scenario, 0, len(gasMultiplierGrid)*len(amountFractionGrid)*len(relayOptions))
	for _, mult := range gasMultiplierGrid {
		if mult > o.config.MaxGasMultiplier {
			continue
		}
		for _, frac := range amountFractionGrid {
			for _, relay := range relayOptions {
				out = append(out, Scenario{
					GasMultiplier:   mult,
					AmountFraction:  frac,
					UsePrivateRelay: relay,
				})
			}
		}
	}
	return out
}

// Simulate runs the configured trial count for one scenario.
func (o *Optimizer) Simulate(scenario Scenario, input SimulationInput) SimulationResult {
	o.simulations.Add(1)

	victimUSD := input.VictimAmountUSD.InexactFloat64()
	frontUSD := victimUSD * float64(scenario.AmountFraction) / 100
	nativeUSD := input.NativePriceUSD.InexactFloat64()
	gasGwei := input.BaseGasGwei.InexactFloat64() * scenario.GasMultiplier
	// One leg of gas, in USD.
	legCostUSD := gasGwei * 1e-9 * float64(o.config.GasLimitPerLeg) * nativeUSD

	congestionFactor := float64(input.Congestion.Index()) / 10
	competitorMean := input.CompetitorPressure
	if competitorMean <= 0 {
		competitorMean = 0.5
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	successes := 0
	profits := make([]float64, 0, o.config.Trials)
	for i := 0; i < o.config.Trials; i++ {
		baseProb := 0.4 + scenario.GasMultiplier*0.2
		if scenario.UsePrivateRelay {
			// Relay inclusion skips the public gas auction.
			baseProb += 0.1
		}
		competition := o.truncNormal(competitorMean, o.config.CompetitionStd, 0.1, 0.9)
		successProb := baseProb * (1 - congestionFactor*0.5) * (1 - competition)

		if o.rng.Float64() >= successProb {
			profits = append(profits, -legCostUSD)
			continue
		}
		successes++

		ourImpact := o.truncNormal(o.config.PriceImpactMean, o.config.PriceImpactStd, 0.001, 0.05)
		victimImpact := 0.0
		if frontUSD > 0 {
			victimImpact = victimUSD / frontUSD * ourImpact
		}
		gross := frontUSD * (ourImpact + victimImpact)
		profits = append(profits, gross-2*legCostUSD)
	}

	return aggregate(scenario, profits, successes, o.config.Trials)
}

func aggregate(scenario Scenario, profits []float64, successes, trials int) SimulationResult {
	res := SimulationResult{Scenario: scenario, Trials: trials}
	if len(profits) == 0 {
		return res
	}
	sort.Float64s(profits)

	sum := 0.0
	for _, p := range profits {
		sum += p
	}
	res.SuccessProb = float64(successes) / float64(trials)
	res.ExpectedProfitUSD = decimal.NewFromFloat(sum / float64(len(profits)))
	res.WorstCaseUSD = decimal.NewFromFloat(profits[0])
	res.BestCaseUSD = decimal.NewFromFloat(profits[len(profits)-1])
	res.P5USD = decimal.NewFromFloat(profits[len(profits)/20])
	return res
}

// truncNormal samples a clamped Normal. Callers hold o.mu.
func (o *Optimizer) truncNormal(mean, std, lo, hi float64) float64 {
	v := mean + std*o.rng.NormFloat64()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Optimize scores the grid against input and selects a plan: survivors of
// the risk-tolerance filter ranked by AI-weighted expected profit, with a
// least-bad fallback when nothing clears the bar.
func (o *Optimizer) Optimize(input SimulationInput, tolerance RiskTolerance, aiConfidence float64) (*SimulationResult, error) {
	scenarios := o.GenerateScenarios(input.Congestion)
	if len(scenarios) == 0 {
		return nil, errs.New(errs.SimulationInfeasible, "strategy: no scenarios under gas cap %.2f", o.config.MaxGasMultiplier)
	}

	results := make([]SimulationResult, 0, len(scenarios))
	for _, sc := range scenarios {
		results = append(results, o.Simulate(sc, input))
	}

	tau := tolerance.Tau()
	weight := decimal.NewFromFloat(1 + 0.2*clamp01(aiConfidence))

	var best *SimulationResult
	var bestScore decimal.Decimal
	for i := range results {
		r := &results[i]
		if r.SuccessProb < tau {
			continue
		}
		score := r.ExpectedProfitUSD.Mul(weight)
		if best == nil || score.GreaterThan(bestScore) {
			best, bestScore = r, score
		}
	}

	if best == nil {
		// Least-bad fallback: the most likely to land, profit aside.
		for i := range results {
			if best == nil || results[i].SuccessProb > best.SuccessProb {
				best = &results[i]
			}
		}
		log.Debug().
			Float64("tau", tau).
			Float64("success_prob", best.SuccessProb).
			Msg("strategy: no scenario cleared tolerance, using least-bad fallback")
	}

	cp := *best
	return &cp, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Stats is a snapshot of optimizer counters.
type Stats struct {
	Simulations int64 `json:"simulations"`
	Competitors int   `json:"competitor_samples"`
}

func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Simulations: o.simulations.Load(),
		Competitors: len(o.competitorWindow),
	}
}
