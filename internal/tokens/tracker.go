package tokens

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/bus"
	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/mempool"
	"github.com/hornet-trading/hornet/internal/risk"
)

// ---------------------------------------------------------------------------
// Token Status Tracker — materialized per-token view with LRU eviction
// ---------------------------------------------------------------------------

// SafetyLevel gates what the trading core may do with a token.
type SafetyLevel int

const (
	SafetyGreen SafetyLevel = iota
	SafetyYellow
	SafetyRed
)

func (s SafetyLevel) String() string {
	switch s {
	case SafetyGreen:
		return "green"
	case SafetyYellow:
		return "yellow"
	case SafetyRed:
		return "red"
	default:
		return "unknown"
	}
}

// Config configures the tracker.
type Config struct {
	// Capacity is the hard LRU bound on tracked tokens.
	Capacity int `yaml:"capacity"`

	// Staleness evicts tokens not refreshed within this window.
	Staleness time.Duration `yaml:"staleness"`

	// RefreshConcurrency bounds parallel refreshes in UpdateAll.
	RefreshConcurrency int `yaml:"refresh_concurrency"`

	// RefreshTimeout is the per-token refresh deadline.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`

	// PriceAlertPct is the move size that emits an alert.
	PriceAlertPct decimal.Decimal `yaml:"price_alert_pct"`

	// MinLiquidityNative is the floor below which a token is Red.
	MinLiquidityNative decimal.Decimal `yaml:"min_liquidity_native"`

	// CautionLiquidityNative is the floor below which a token is Yellow.
	CautionLiquidityNative decimal.Decimal `yaml:"caution_liquidity_native"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:               1000,
		Staleness:              24 * time.Hour,
		RefreshConcurrency:     8,
		RefreshTimeout:         10 * time.Second,
		PriceAlertPct:          decimal.NewFromInt(5),
		MinLiquidityNative:     decimal.NewFromInt(1),
		CautionLiquidityNative: decimal.NewFromInt(5),
	}
}

// TokenStatus is the tracked view of one token.
type TokenStatus struct {
	Address             evm.Address             `json:"address"`
	Symbol              string                  `json:"symbol"`
	Decimals            uint8                   `json:"decimals"`
	Pair                evm.Address             `json:"pair,omitempty"`
	Router              evm.Address             `json:"router"`
	LiquidityNative     decimal.Decimal         `json:"liquidity_native"`
	PriceNative         decimal.Decimal         `json:"price_native"`
	PriceUSD            decimal.Decimal         `json:"price_usd"`
	PendingTxCount      int                     `json:"pending_tx_count"`
	Safety              SafetyLevel             `json:"safety"`
	Risk                *risk.TokenRiskAnalysis `json:"risk,omitempty"`
	ConsecutiveFailures int                     `json:"consecutive_failures"`
	LastUpdated         time.Time               `json:"last_updated"`
}

// PriceAlert describes a >= threshold move between two refreshes.
type PriceAlert struct {
	Token     evm.Address     `json:"token"`
	Symbol    string          `json:"symbol"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangePct decimal.Decimal `json:"change_pct"`
	At        time.Time       `json:"at"`
}

// OnPriceAlert is invoked synchronously inside the refresh that saw the move.
type OnPriceAlert func(alert PriceAlert)

// Classify applies the safety rules in order; the first match wins.
func Classify(cfg Config, status *TokenStatus, analysis *risk.TokenRiskAnalysis) SafetyLevel {
	if analysis == nil {
		return SafetyYellow
	}
	twenty := decimal.NewFromInt(20)
	ten := decimal.NewFromInt(10)

	if !analysis.IsVerified || len(analysis.DangerousFunctions) > 0 {
		return SafetyRed
	}
	if analysis.Tax.BuyTaxPct.GreaterThan(twenty) || analysis.Tax.SellTaxPct.GreaterThan(twenty) {
		return SafetyRed
	}
	if status.LiquidityNative.LessThan(cfg.MinLiquidityNative) || analysis.Score >= 75 {
		return SafetyRed
	}
	if analysis.Tax.BuyTaxPct.GreaterThan(ten) || analysis.Tax.SellTaxPct.GreaterThan(ten) ||
		(analysis.Score >= 35 && analysis.Score < 75) ||
		status.LiquidityNative.LessThan(cfg.CautionLiquidityNative) {
		return SafetyYellow
	}
	return SafetyGreen
}

// Tracker keeps the materialized token view fresh. LRU-bounded; refreshes
// run with bounded concurrency.
type Tracker struct {
	config   Config
	chain    evm.ChainConfig
	adapter  evm.ChainAdapter
	analyzer *risk.Analyzer
	pool     *mempool.Tracker
	events   *bus.Bus

	mu      sync.RWMutex
	entries map[evm.Address]*list.Element
	order   *list.List // front = most recently updated
	alertCb []OnPriceAlert

	refreshes   atomic.Int64
	failures    atomic.Int64
	evictions   atomic.Int64
	alerts      atomic.Int64
	lastSuccess atomic.Int64
}

type trackedToken struct {
	status TokenStatus
}

// NewTracker creates a token status tracker. pool and events may be nil.
func NewTracker(config Config, chain evm.ChainConfig, adapter evm.ChainAdapter, analyzer *risk.Analyzer, pool *mempool.Tracker, events *bus.Bus) *Tracker {
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	if config.RefreshConcurrency <= 0 {
		config.RefreshConcurrency = 8
	}
	t := &Tracker{
		config:   config,
		chain:    chain,
		adapter:  adapter,
		analyzer: analyzer,
		pool:     pool,
		events:   events,
		entries:  make(map[evm.Address]*list.Element),
		order:    list.New(),
	}
	t.lastSuccess.Store(time.Now().Unix())
	return t
}

// LastSuccess returns the unix time of the last successful refresh.
func (t *Tracker) LastSuccess() time.Time { return time.Unix(t.lastSuccess.Load(), 0) }

// OnPriceAlert registers a synchronous alert callback.
func (t *Tracker) OnPriceAlert(cb OnPriceAlert) {
	t.mu.Lock()
	t.alertCb = append(t.alertCb, cb)
	t.mu.Unlock()
}

// Add starts tracking token, evicting the LRU entry on overflow.
// Adding an already-tracked token is a no-op.
func (t *Tracker) Add(ctx context.Context, token evm.Address) error {
	if !evm.IsValidAddress(string(token)) {
		return errs.New(errs.ConfigInvalid, "tokens: invalid address %q", token)
	}

	t.mu.Lock()
	if _, ok := t.entries[token]; ok {
		t.mu.Unlock()
		return nil
	}
	if len(t.entries) >= t.config.Capacity {
		t.evictOldestLocked()
	}
	el := t.order.PushFront(&trackedToken{status: TokenStatus{
		Address:     token,
		Router:      t.chain.Router,
		Safety:      SafetyYellow, // unknown until first refresh
		LastUpdated: time.Now(),
	}})
	t.entries[token] = el
	t.mu.Unlock()

	// Best-effort initial fill; failures leave the placeholder in place.
	t.refreshOne(ctx, token)
	return nil
}

// Get returns a copy of the tracked status, or nil when untracked.
func (t *Tracker) Get(token evm.Address) *TokenStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	el, ok := t.entries[token]
	if !ok {
		return nil
	}
	cp := el.Value.(*trackedToken).status
	return &cp
}

// Tracked returns the tracked addresses, most recently updated first.
func (t *Tracker) Tracked() []evm.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]evm.Address, 0, len(t.entries))
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*trackedToken).status.Address)
	}
	return out
}

// Len returns the tracked-token count.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// UpdateAll refreshes every tracked token with bounded concurrency and
// returns the price alerts the pass produced.
func (t *Tracker) UpdateAll(ctx context.Context) []PriceAlert {
	tokens := t.Tracked()

	sem := make(chan struct{}, t.config.RefreshConcurrency)
	var wg sync.WaitGroup
	var alertMu sync.Mutex
	var alerts []PriceAlert

	for _, token := range tokens {
		token := token
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if alert := t.refreshOne(ctx, token); alert != nil {
				alertMu.Lock()
				alerts = append(alerts, *alert)
				alertMu.Unlock()
			}
		}()
	}
	wg.Wait()

	t.sweep()
	if len(tokens) == 0 {
		// An idle tracker is a healthy tracker.
		t.lastSuccess.Store(time.Now().Unix())
	}
	return alerts
}

// refreshOne refetches one token under the per-token timeout. Returns a
// price alert when the move crosses the threshold.
func (t *Tracker) refreshOne(parent context.Context, token evm.Address) *PriceAlert {
	ctx, cancel := context.WithTimeout(parent, t.config.RefreshTimeout)
	defer cancel()

	t.refreshes.Add(1)

	fresh, analysis, err := t.fetch(ctx, token)
	if err != nil {
		t.failures.Add(1)
		t.mu.Lock()
		if el, ok := t.entries[token]; ok {
			el.Value.(*trackedToken).status.ConsecutiveFailures++
		}
		t.mu.Unlock()
		log.Warn().Err(err).Str("token", string(token)).Msg("tokens: refresh failed")
		return nil
	}

	var alert *PriceAlert
	t.mu.Lock()
	el, ok := t.entries[token]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	prev := el.Value.(*trackedToken).status
	fresh.ConsecutiveFailures = 0
	fresh.Safety = Classify(t.config, fresh, analysis)

	if prev.PriceNative.IsPositive() && fresh.PriceNative.IsPositive() {
		change := fresh.PriceNative.Sub(prev.PriceNative).
			Div(prev.PriceNative).Mul(decimal.NewFromInt(100))
		if change.Abs().GreaterThanOrEqual(t.config.PriceAlertPct) {
			alert = &PriceAlert{
				Token:     token,
				Symbol:    fresh.Symbol,
				OldPrice:  prev.PriceNative,
				NewPrice:  fresh.PriceNative,
				ChangePct: change,
				At:        time.Now(),
			}
		}
	}

	el.Value.(*trackedToken).status = *fresh
	t.order.MoveToFront(el)
	callbacks := t.alertCb
	t.mu.Unlock()
	t.lastSuccess.Store(time.Now().Unix())

	if t.pool != nil && fresh.PriceNative.IsPositive() {
		t.pool.SetTokenPrice(token, fresh.PriceNative, fresh.Decimals)
	}

	if alert != nil {
		t.alerts.Add(1)
		for _, cb := range callbacks {
			cb(*alert)
		}
		if t.events != nil {
			t.events.Publish(bus.TopicPriceAlert, bus.PriceAlertEvent{
				Token:     token,
				OldPrice:  alert.OldPrice,
				NewPrice:  alert.NewPrice,
				ChangePct: alert.ChangePct,
			})
		}
	}
	return alert
}

// fetch pulls the fresh on-chain view for one token.
func (t *Tracker) fetch(ctx context.Context, token evm.Address) (*TokenStatus, *risk.TokenRiskAnalysis, error) {
	info, err := t.adapter.TokenInfo(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	status := &TokenStatus{
		Address:     token,
		Symbol:      info.Symbol,
		Decimals:    info.Decimals,
		Router:      t.chain.Router,
		LastUpdated: time.Now(),
	}

	if pair, err := t.adapter.Pair(ctx, token, t.chain.WrappedNative); err == nil && !pair.IsZero() {
		status.Pair = pair
		if liq, err := t.adapter.TokenBalance(ctx, t.chain.WrappedNative, pair); err == nil {
			status.LiquidityNative = liq
		}
	}

	// Price: quote one native through the pair and invert.
	one := decimal.NewFromInt(1)
	if out, err := t.adapter.AmountsOut(ctx, one, []evm.Address{t.chain.WrappedNative, token}); err == nil && len(out) >= 2 && out[len(out)-1].IsPositive() {
		status.PriceNative = one.Div(out[len(out)-1])
		if usd, err := t.adapter.NativePriceUSD(ctx); err == nil {
			status.PriceUSD = status.PriceNative.Mul(usd)
		}
	}

	if t.pool != nil {
		status.PendingTxCount = t.pool.Metrics(token).PendingCount
	}

	var analysis *risk.TokenRiskAnalysis
	if t.analyzer != nil {
		analysis, err = t.analyzer.Analyze(ctx, token)
		if err != nil {
			return nil, nil, err
		}
		status.Risk = analysis
	}
	return status, analysis, nil
}

// sweep evicts stale entries and trims back to capacity.
func (t *Tracker) sweep() {
	cutoff := time.Now().Add(-t.config.Staleness)
	t.mu.Lock()
	defer t.mu.Unlock()

	for el := t.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*trackedToken).status.LastUpdated.Before(cutoff) {
			t.removeLocked(el)
		}
		el = prev
	}
	for len(t.entries) > t.config.Capacity {
		t.evictOldestLocked()
	}
}

func (t *Tracker) evictOldestLocked() {
	if oldest := t.order.Back(); oldest != nil {
		t.removeLocked(oldest)
		t.evictions.Add(1)
	}
}

func (t *Tracker) removeLocked(el *list.Element) {
	t.order.Remove(el)
	delete(t.entries, el.Value.(*trackedToken).status.Address)
}

// Stats is a snapshot of tracker counters.
type Stats struct {
	Tracked   int   `json:"tracked"`
	Refreshes int64 `json:"refreshes"`
	Failures  int64 `json:"failures"`
	Evictions int64 `json:"evictions"`
	Alerts    int64 `json:"alerts"`
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Tracked:   t.Len(),
		Refreshes: t.refreshes.Load(),
		Failures:  t.failures.Load(),
		Evictions: t.evictions.Load(),
		Alerts:    t.alerts.Load(),
	}
}
