package gas

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// Gas Optimizer — fee recommendation and congestion estimation
// ---------------------------------------------------------------------------

// Congestion is the network congestion label derived from recent samples.
type Congestion int

const (
	CongestionLow Congestion = iota
	CongestionMedium
	CongestionHigh
	CongestionVeryHigh
)

func (c Congestion) String() string {
	switch c {
	case CongestionLow:
		return "low"
	case CongestionMedium:
		return "medium"
	case CongestionHigh:
		return "high"
	case CongestionVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// Index maps the label onto the 0-10 scale the strategy layer's congestion
// factor formula expects.
func (c Congestion) Index() int {
	switch c {
	case CongestionLow:
		return 2
	case CongestionMedium:
		return 5
	case CongestionHigh:
		return 7
	case CongestionVeryHigh:
		return 9
	default:
		return 5
	}
}

// Config configures the gas optimizer.
type Config struct {
	// SampleWindow is how many gas-price observations the rolling window keeps.
	SampleWindow int `yaml:"sample_window"`
	// SampleInterval is the refresh cadence of the background sampler.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// GasCapGwei is the hard ceiling no recommendation may exceed.
	GasCapGwei decimal.Decimal `yaml:"gas_cap_gwei"`
	// MaxBoostPercent caps congestion/retry escalation above the base sample.
	MaxBoostPercent int64 `yaml:"max_boost_percent"`
	// PriorityBoostPercent caps the EIP-1559 priority-fee boost.
	PriorityBoostPercent int64 `yaml:"priority_boost_percent"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SampleWindow:         50,
		SampleInterval:       15 * time.Second,
		GasCapGwei:           decimal.NewFromInt(500),
		MaxBoostPercent:      50,
		PriorityBoostPercent: 20,
	}
}

// Recommendation is the fee posture for the next submission.
type Recommendation struct {
	EIP1559         bool            `json:"eip1559"`
	GasPriceGwei    decimal.Decimal `json:"gas_price_gwei,omitempty"`
	PriorityFeeGwei decimal.Decimal `json:"priority_fee_gwei,omitempty"`
	MaxFeeGwei      decimal.Decimal `json:"max_fee_gwei,omitempty"`
	Congestion      Congestion      `json:"congestion"`
}

// Effective returns the figure used for multiplier math: legacy price or max fee.
func (r Recommendation) Effective() decimal.Decimal {
	if r.EIP1559 {
		return r.MaxFeeGwei
	}
	return r.GasPriceGwei
}

type sample struct {
	priceGwei decimal.Decimal
	baseGwei  decimal.Decimal
	at        time.Time
}

// Optimizer keeps a rolling window of gas observations and recommends fee
// postures bounded by a hard cap.
type Optimizer struct {
	config  Config
	adapter evm.ChainAdapter

	mu         sync.RWMutex
	samples    []sample
	congestion Congestion
	lastSample time.Time
}

// NewOptimizer creates a gas optimizer for one chain.
func NewOptimizer(config Config, adapter evm.ChainAdapter) *Optimizer {
	if config.SampleWindow <= 0 {
		config.SampleWindow = 50
	}
	if config.GasCapGwei.IsZero() {
		config.GasCapGwei = decimal.NewFromInt(500)
	}
	return &Optimizer{
		config:     config,
		adapter:    adapter,
		congestion: CongestionMedium,
	}
}

// Run samples gas prices until ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context) {
	interval := o.config.SampleInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("gas: sample refresh failed")
			}
		}
	}
}

// Refresh fetches one gas observation and re-derives the congestion label.
func (o *Optimizer) Refresh(ctx context.Context) error {
	price, err := o.adapter.GasPrice(ctx)
	if err != nil {
		return errs.Wrap(errs.ChainUnavailable, err, "sample gas price")
	}
	base, err := o.adapter.BaseFee(ctx)
	if err != nil {
		return errs.Wrap(errs.ChainUnavailable, err, "sample base fee")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.samples = append(o.samples, sample{priceGwei: price, baseGwei: base, at: time.Now()})
	if len(o.samples) > o.config.SampleWindow {
		o.samples = o.samples[len(o.samples)-o.config.SampleWindow:]
	}
	o.lastSample = time.Now()
	o.updateCongestionLocked()
	return nil
}

// Observe feeds an externally sourced gas price (e.g. from mempool
// transactions) into the rolling window.
func (o *Optimizer) Observe(priceGwei decimal.Decimal) {
	if !priceGwei.IsPositive() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var base decimal.Decimal
	if n := len(o.samples); n > 0 {
		base = o.samples[n-1].baseGwei
	}
	o.samples = append(o.samples, sample{priceGwei: priceGwei, baseGwei: base, at: time.Now()})
	if len(o.samples) > o.config.SampleWindow {
		o.samples = o.samples[len(o.samples)-o.config.SampleWindow:]
	}
	o.updateCongestionLocked()
}

// updateCongestionLocked re-labels congestion from window growth and variance.
func (o *Optimizer) updateCongestionLocked() {
	n := len(o.samples)
	if n < 5 {
		return
	}

	oldest := o.samples[0].priceGwei
	newest := o.samples[n-1].priceGwei
	var growthPct float64
	if oldest.IsPositive() {
		growthPct, _ = newest.Sub(oldest).Div(oldest).Mul(decimal.NewFromInt(100)).Float64()
	}

	mean := decimal.Zero
	for _, s := range o.samples {
		mean = mean.Add(s.priceGwei)
	}
	mean = mean.Div(decimal.NewFromInt(int64(n)))

	var maxDevPct float64
	if mean.IsPositive() {
		for _, s := range o.samples {
			dev, _ := s.priceGwei.Sub(mean).Abs().Div(mean).Mul(decimal.NewFromInt(100)).Float64()
			if dev > maxDevPct {
				maxDevPct = dev
			}
		}
	}

	prev := o.congestion
	switch {
	case growthPct > 20 || maxDevPct > 30:
		o.congestion = CongestionVeryHigh
	case growthPct > 10 || maxDevPct > 15:
		o.congestion = CongestionHigh
	case growthPct > 5 || maxDevPct > 5:
		o.congestion = CongestionMedium
	default:
		o.congestion = CongestionLow
	}

	if prev != o.congestion {
		log.Debug().
			Str("from", prev.String()).
			Str("to", o.congestion.String()).
			Float64("growth_pct", growthPct).
			Float64("max_dev_pct", maxDevPct).
			Msg("gas: congestion relabelled")
	}
}

// Congestion returns the current congestion label.
func (o *Optimizer) Congestion() Congestion {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.congestion
}

// Percentile returns the pth percentile (0..1) of the rolling window.
func (o *Optimizer) Percentile(p float64) decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return percentileLocked(o.samples, p)
}

func percentileLocked(samples []sample, p float64) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	prices := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		prices[i] = s.priceGwei
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	idx := int(p * float64(len(prices)-1))
	return prices[idx]
}

// Optimal returns the recommended fee posture for the chain, bounded by the
// configured hard cap. Chains without samples fall back to the node quote.
func (o *Optimizer) Optimal(ctx context.Context) (Recommendation, error) {
	chain := o.adapter.Chain()

	o.mu.RLock()
	congestion := o.congestion
	p50 := percentileLocked(o.samples, 0.50)
	sampled := len(o.samples) > 0
	o.mu.RUnlock()

	if !sampled {
		price, err := o.adapter.GasPrice(ctx)
		if err != nil {
			return Recommendation{}, errs.Wrap(errs.ChainUnavailable, err, "quote gas price")
		}
		p50 = price
	}

	boostPct := congestionBoostPct(congestion)
	if boostPct > o.config.MaxBoostPercent {
		boostPct = o.config.MaxBoostPercent
	}
	boosted := applyPct(p50, boostPct)
	boosted = capAt(boosted, o.config.GasCapGwei)

	if !chain.EIP1559 {
		return Recommendation{GasPriceGwei: boosted, Congestion: congestion}, nil
	}

	base, err := o.adapter.BaseFee(ctx)
	if err != nil {
		return Recommendation{}, errs.Wrap(errs.ChainUnavailable, err, "quote base fee")
	}

	priority := chain.MaxPriorityFeeGwei
	if priority.IsZero() {
		priority = decimal.NewFromInt(2)
	}
	priorityBoost := congestionBoostPct(congestion)
	if priorityBoost > o.config.PriorityBoostPercent {
		priorityBoost = o.config.PriorityBoostPercent
	}
	priority = applyPct(priority, priorityBoost)

	maxFee := base.Mul(decimal.NewFromInt(2)).Add(priority)
	maxFee = capAt(maxFee, o.config.GasCapGwei)

	return Recommendation{
		EIP1559:         true,
		PriorityFeeGwei: priority,
		MaxFeeGwei:      maxFee,
		Congestion:      congestion,
	}, nil
}

// RetryGasPrice escalates a price for the nth retry: +10%, +25%, then +50%,
// capped by both the max boost and the hard cap.
func (o *Optimizer) RetryGasPrice(retry int, current decimal.Decimal) decimal.Decimal {
	var pct int64
	switch {
	case retry <= 0:
		pct = 0
	case retry == 1:
		pct = 10
	case retry == 2:
		pct = 25
	default:
		pct = 50
	}
	if pct > o.config.MaxBoostPercent {
		pct = o.config.MaxBoostPercent
	}
	return capAt(applyPct(current, pct), o.config.GasCapGwei)
}

// RetryGasLimit widens a gas limit for the nth retry: +10%, +20%, then +30%.
func (o *Optimizer) RetryGasLimit(base uint64, retry int) uint64 {
	var pct uint64
	switch {
	case retry <= 0:
		pct = 0
	case retry == 1:
		pct = 10
	case retry == 2:
		pct = 20
	default:
		pct = 30
	}
	return base + base*pct/100
}

// Trend reports the percent change across the window with a coarse label.
func (o *Optimizer) Trend() (pct float64, label string) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	n := len(o.samples)
	if n < 2 {
		return 0, "stable"
	}
	oldest := o.samples[0].priceGwei
	newest := o.samples[n-1].priceGwei
	if !oldest.IsPositive() {
		return 0, "stable"
	}
	pct, _ = newest.Sub(oldest).Div(oldest).Mul(decimal.NewFromInt(100)).Float64()
	switch {
	case pct > 5:
		return pct, "rising"
	case pct < -5:
		return pct, "falling"
	default:
		return pct, "stable"
	}
}

// Cap returns the configured hard ceiling in gwei.
func (o *Optimizer) Cap() decimal.Decimal { return o.config.GasCapGwei }

// LastSample returns when the window last absorbed an observation.
func (o *Optimizer) LastSample() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastSample
}

func congestionBoostPct(c Congestion) int64 {
	switch c {
	case CongestionLow:
		return 5
	case CongestionMedium:
		return 10
	case CongestionHigh:
		return 20
	case CongestionVeryHigh:
		return 30
	default:
		return 10
	}
}

func applyPct(v decimal.Decimal, pct int64) decimal.Decimal {
	return v.Mul(decimal.NewFromInt(100 + pct)).Div(decimal.NewFromInt(100))
}

func capAt(v, cap decimal.Decimal) decimal.Decimal {
	if cap.IsPositive() && v.GreaterThan(cap) {
		return cap
	}
	return v
}
