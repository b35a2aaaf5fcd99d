package risk

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/cache"
	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// Risk Analyzer — static + dynamic token safety scoring
// ---------------------------------------------------------------------------

// Config configures the analyzer.
type Config struct {
	// TopHolderLimit is how many holders the concentration check inspects.
	TopHolderLimit int `yaml:"top_holder_limit"`

	// ProbeSmallNative and ProbeLargeNative are the two simulated swap
	// sizes for the tax probe, in native units.
	ProbeSmallNative decimal.Decimal `yaml:"probe_small_native"`
	ProbeLargeNative decimal.Decimal `yaml:"probe_large_native"`

	// HoneypotRatio is the round-trip receive ratio below which a token
	// is classified as a honeypot.
	HoneypotRatio decimal.Decimal `yaml:"honeypot_ratio"`

	// CacheTTL is how long an analysis stays fresh.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TopHolderLimit:   10,
		ProbeSmallNative: decimal.NewFromFloat(0.05),
		ProbeLargeNative: decimal.NewFromFloat(0.5),
		HoneypotRatio:    decimal.NewFromFloat(0.5),
		CacheTTL:         10 * time.Minute,
	}
}

// TaxInfo is the estimated tax triplet in percent.
type TaxInfo struct {
	BuyTaxPct      decimal.Decimal `json:"buy_tax_pct"`
	SellTaxPct     decimal.Decimal `json:"sell_tax_pct"`
	TransferTaxPct decimal.Decimal `json:"transfer_tax_pct"`
}

// TokenRiskAnalysis is the scored safety profile of one token.
// Score runs 0-100; higher is riskier.
type TokenRiskAnalysis struct {
	Token              evm.Address `json:"token"`
	Score              int         `json:"score"`
	IsHoneypot         bool        `json:"is_honeypot"`
	IsVerified         bool        `json:"is_verified"`
	DangerousFunctions []string    `json:"dangerous_functions,omitempty"`
	Tax                TaxInfo     `json:"tax"`
	LiquidityLocked    bool        `json:"liquidity_locked"`
	TopHolderPct       float64     `json:"top_holder_pct"`
	Top10Pct           float64     `json:"top10_pct"`
	AnalyzedAt         time.Time   `json:"analyzed_at"`
}

// Owner-privileged selectors that let a deployer trap or dilute buyers.
var dangerousSelectors = map[string]string{
	"40c10f19": "mint",
	"8456cb59": "pause",
	"f9f92be4": "blacklist",
	"8a8c523c": "enableTrading",
	"751039fc": "setMaxTxAmount",
	"c0246668": "excludeFromFee",
}

// burnAddr holds LP tokens that can never move; liquidity sent here is
// considered locked.
const burnAddr = evm.Address("0x000000000000000000000000000000000000dead")

// Score weights.
const (
	weightUnverified    = 30
	weightDangerousFn   = 15
	weightDangerousCap  = 45
	weightHoneypot      = 40
	weightTop1Majority  = 20 // top holder > 50%
	weightTop1Large     = 10 // top holder > 20%
	weightTop10Dominant = 15 // top 10 > 80%
	weightTop10Heavy    = 8  // top 10 > 60%
	weightUnlocked      = 10
	weightTaxExtreme    = 15 // either side > 20%
	weightTaxHigh       = 8  // either side > 10%
)

// Analyzer scores tokens. Results are cached so repeated classification
// of the same token does not hammer the chain.
type Analyzer struct {
	config  Config
	chain   evm.ChainConfig
	adapter evm.ChainAdapter
	cache   cache.Cache

	analyses  atomic.Int64
	honeypots atomic.Int64
}

// NewAnalyzer creates a risk analyzer. store may be nil to disable caching.
func NewAnalyzer(config Config, chain evm.ChainConfig, adapter evm.ChainAdapter, store cache.Cache) *Analyzer {
	return &Analyzer{
		config:  config,
		chain:   chain,
		adapter: adapter,
		cache:   store,
	}
}

func cacheKey(token evm.Address) string { return "risk:" + string(token) }

// Analyze produces the full risk profile for token.
func (a *Analyzer) Analyze(ctx context.Context, token evm.Address) (*TokenRiskAnalysis, error) {
	if !evm.IsValidAddress(string(token)) {
		return nil, errs.New(errs.ConfigInvalid, "risk: invalid token address %q", token)
	}

	if a.cache != nil {
		var cached TokenRiskAnalysis
		if ok, err := cache.GetJSON(ctx, a.cache, cacheKey(token), &cached); err == nil && ok {
			return &cached, nil
		}
	}

	info, err := a.adapter.TokenInfo(ctx, token)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "risk: token info for %s", token)
	}

	analysis := &TokenRiskAnalysis{
		Token:      token,
		IsVerified: info.Verified,
		AnalyzedAt: time.Now(),
	}
	for _, sel := range info.Selectors {
		if name, ok := dangerousSelectors[sel]; ok {
			analysis.DangerousFunctions = append(analysis.DangerousFunctions, name)
		}
	}

	a.checkHolderConcentration(ctx, token, analysis)
	a.checkLiquidityLock(ctx, token, analysis)
	a.probeTaxes(ctx, token, analysis)
	analysis.Score = a.score(analysis)

	a.analyses.Add(1)
	if analysis.IsHoneypot {
		a.honeypots.Add(1)
		log.Warn().
			Str("token", string(token)).
			Str("sell_tax", analysis.Tax.SellTaxPct.StringFixed(1)).
			Msg("risk: honeypot detected")
	}

	if a.cache != nil {
		_ = cache.SetJSON(ctx, a.cache, cacheKey(token), analysis, a.config.CacheTTL)
	}
	return analysis, nil
}

func (a *Analyzer) checkHolderConcentration(ctx context.Context, token evm.Address, analysis *TokenRiskAnalysis) {
	holders, err := a.adapter.TopHolders(ctx, token, a.config.TopHolderLimit)
	if err != nil || len(holders) == 0 {
		return
	}
	analysis.TopHolderPct = holders[0].Percentage
	for _, h := range holders {
		analysis.Top10Pct += h.Percentage
	}
}

// checkLiquidityLock treats LP supply parked at the burn address as locked.
func (a *Analyzer) checkLiquidityLock(ctx context.Context, token evm.Address, analysis *TokenRiskAnalysis) {
	pair, err := a.adapter.Pair(ctx, token, a.chain.WrappedNative)
	if err != nil || pair.IsZero() {
		return
	}
	burned, err := a.adapter.TokenBalance(ctx, pair, burnAddr)
	if err != nil {
		return
	}
	analysis.LiquidityLocked = burned.IsPositive()
}

// probeTaxes quotes a buy-then-sell round trip at two sizes. A receive
// ratio below the honeypot threshold classifies the token; a milder loss
// becomes the sell-tax estimate. Buy tax is estimated from how far the
// large quote falls short of scaling linearly from the small one.
func (a *Analyzer) probeTaxes(ctx context.Context, token evm.Address, analysis *TokenRiskAnalysis) {
	buyPath := []evm.Address{a.chain.WrappedNative, token}
	sellPath := []evm.Address{token, a.chain.WrappedNative}

	roundtrip := func(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool) {
		buyOut, err := a.adapter.AmountsOut(ctx, amount, buyPath)
		if err != nil || len(buyOut) < 2 || !buyOut[len(buyOut)-1].IsPositive() {
			return decimal.Zero, decimal.Zero, false
		}
		tokens := buyOut[len(buyOut)-1]
		sellOut, err := a.adapter.AmountsOut(ctx, tokens, sellPath)
		if err != nil || len(sellOut) < 2 {
			// A token that cannot be quoted back to native is unsellable.
			analysis.IsHoneypot = true
			return tokens, decimal.Zero, false
		}
		return tokens, sellOut[len(sellOut)-1], true
	}

	smallTokens, _, okSmall := roundtrip(a.config.ProbeSmallNative)
	largeTokens, largeBack, okLarge := roundtrip(a.config.ProbeLargeNative)
	if !okSmall || !okLarge {
		return
	}

	ratio := largeBack.Div(a.config.ProbeLargeNative)
	if ratio.LessThan(a.config.HoneypotRatio) {
		analysis.IsHoneypot = true
	}
	if ratio.LessThan(decimal.NewFromInt(1)) {
		// Attribute the round-trip loss to the sell side.
		analysis.Tax.SellTaxPct = decimal.NewFromInt(1).Sub(ratio).Mul(decimal.NewFromInt(100))
	}

	// Linear scaling check: out_large should be (large/small) x out_small.
	scale := a.config.ProbeLargeNative.Div(a.config.ProbeSmallNative)
	expected := smallTokens.Mul(scale)
	if expected.IsPositive() && largeTokens.LessThan(expected) {
		shortfall := decimal.NewFromInt(1).Sub(largeTokens.Div(expected))
		analysis.Tax.BuyTaxPct = shortfall.Mul(decimal.NewFromInt(100))
	}
}

func (a *Analyzer) score(analysis *TokenRiskAnalysis) int {
	score := 0
	if !analysis.IsVerified {
		score += weightUnverified
	}
	if n := len(analysis.DangerousFunctions) * weightDangerousFn; n > 0 {
		if n > weightDangerousCap {
			n = weightDangerousCap
		}
		score += n
	}
	if analysis.IsHoneypot {
		score += weightHoneypot
	}
	switch {
	case analysis.TopHolderPct > 50:
		score += weightTop1Majority
	case analysis.TopHolderPct > 20:
		score += weightTop1Large
	}
	switch {
	case analysis.Top10Pct > 80:
		score += weightTop10Dominant
	case analysis.Top10Pct > 60:
		score += weightTop10Heavy
	}
	if !analysis.LiquidityLocked {
		score += weightUnlocked
	}
	maxTax := decimal.Max(analysis.Tax.BuyTaxPct, analysis.Tax.SellTaxPct)
	twenty := decimal.NewFromInt(20)
	ten := decimal.NewFromInt(10)
	switch {
	case maxTax.GreaterThan(twenty):
		score += weightTaxExtreme
	case maxTax.GreaterThan(ten):
		score += weightTaxHigh
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Stats is a snapshot of analyzer counters.
type Stats struct {
	Analyses  int64 `json:"analyses"`
	Honeypots int64 `json:"honeypots"`
}

func (a *Analyzer) Stats() Stats {
	return Stats{
		Analyses:  a.analyses.Load(),
		Honeypots: a.honeypots.Load(),
	}
}
