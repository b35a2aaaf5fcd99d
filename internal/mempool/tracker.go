package mempool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/bus"
	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// Mempool Tracker — decodes pending router calls into per-token pressure
// ---------------------------------------------------------------------------

// Config configures the mempool tracker.
type Config struct {
	// Window is how long a pending swap counts toward token metrics.
	Window time.Duration `yaml:"window"`

	// MaxPendingPerToken bounds the per-token swap buffer.
	MaxPendingPerToken int `yaml:"max_pending_per_token"`

	// MinSandwichVictimUSD is the smallest buy worth sandwiching.
	MinSandwichVictimUSD decimal.Decimal `yaml:"min_sandwich_victim_usd"`

	// LargeBuyUSD is the threshold for the large_buys metric.
	LargeBuyUSD decimal.Decimal `yaml:"large_buy_usd"`

	// LargeTxAlertUSD triggers a LargeTransaction bus event.
	LargeTxAlertUSD decimal.Decimal `yaml:"large_tx_alert_usd"`

	// MEVDetection toggles the block-window MEV classifier.
	MEVDetection bool `yaml:"mev_detection"`

	// ReconnectBaseDelay and ReconnectMaxDelay bound the exponential
	// backoff after a subscription drop.
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`

	// DegradedAfter marks the tracker degraded once the stream has been
	// down this long. MEV-dependent strategies must refuse to run then.
	DegradedAfter time.Duration `yaml:"degraded_after"`

	// BaseFeeRefresh is how often the cached base fee and native price
	// are refreshed.
	BaseFeeRefresh time.Duration `yaml:"base_fee_refresh"`

	// CleanupInterval is how often expired swaps are pruned.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Window:               5 * time.Minute,
		MaxPendingPerToken:   200,
		MinSandwichVictimUSD: decimal.NewFromInt(1000),
		LargeBuyUSD:          decimal.NewFromInt(1000),
		LargeTxAlertUSD:      decimal.NewFromInt(10_000),
		MEVDetection:         true,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    time.Minute,
		DegradedAfter:        time.Minute,
		BaseFeeRefresh:       15 * time.Second,
		CleanupInterval:      time.Minute,
	}
}

// PendingSwap is a decoded router call still sitting in the mempool.
// Immutable once ingested.
type PendingSwap struct {
	TxHash       evm.Hash        `json:"tx_hash"`
	From         evm.Address     `json:"from"`
	Token        evm.Address     `json:"token"`
	IsBuy        bool            `json:"is_buy"`
	AmountNative decimal.Decimal `json:"amount_native"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	GasPriceGwei decimal.Decimal `json:"gas_price_gwei"`
	SeenAt       time.Time       `json:"seen_at"`
}

// TokenMetrics is the per-token rolling window snapshot.
type TokenMetrics struct {
	BuyPressure   int             `json:"buy_pressure"`
	SellPressure  int             `json:"sell_pressure"`
	PendingCount  int             `json:"pending_count"`
	LargeBuys     int             `json:"large_buys"`
	BuyVolumeUSD  decimal.Decimal `json:"buy_volume_usd"`
	SellVolumeUSD decimal.Decimal `json:"sell_volume_usd"`
	BaseFeeGwei   decimal.Decimal `json:"base_fee_gwei"`
}

// SandwichOpportunity is the top-ranked victim for a token.
type SandwichOpportunity struct {
	Victim             PendingSwap     `json:"victim"`
	EstPriceImpactPct  decimal.Decimal `json:"est_price_impact_pct"`
	PotentialProfitUSD decimal.Decimal `json:"potential_profit_usd"`
}

// OnNewToken is invoked exactly once per token, on its first sighting.
type OnNewToken func(token evm.Address, first PendingSwap)

// Tracker consumes the pending-transaction stream, decodes swap calldata
// and aggregates per-token buy/sell pressure. When the push subscription
// is unavailable it falls back to polling mined blocks at the chain's
// block cadence.
type Tracker struct {
	config  Config
	chain   evm.ChainConfig
	adapter evm.ChainAdapter
	events  *bus.Bus
	mev     *mevClassifier

	// gasObserve feeds sampled swap gas prices to the gas optimizer.
	gasObserve func(decimal.Decimal)

	mu          sync.RWMutex
	pending     map[evm.Address][]PendingSwap
	seenTokens  map[evm.Address]time.Time
	priceHints  map[evm.Address]priceHint
	callbacks   []OnNewToken
	baseFeeGwei decimal.Decimal
	nativeUSD   decimal.Decimal

	degraded    atomic.Bool
	running     atomic.Bool
	lastSuccess atomic.Int64

	txsSeen      atomic.Int64
	swapsDecoded atomic.Int64
	newTokens    atomic.Int64
	reconnects   atomic.Int64
}

type priceHint struct {
	priceNative decimal.Decimal // native units per whole token
	decimals    uint8
}

// NewTracker creates a mempool tracker for one chain. events may be nil.
func NewTracker(config Config, chain evm.ChainConfig, adapter evm.ChainAdapter, events *bus.Bus) *Tracker {
	return &Tracker{
		config:     config,
		chain:      chain,
		adapter:    adapter,
		events:     events,
		mev:        newMEVClassifier(),
		pending:    make(map[evm.Address][]PendingSwap),
		seenTokens: make(map[evm.Address]time.Time),
		priceHints: make(map[evm.Address]priceHint),
	}
}

// SetGasObserver wires a sink for sampled swap gas prices.
func (t *Tracker) SetGasObserver(fn func(decimal.Decimal)) {
	t.mu.Lock()
	t.gasObserve = fn
	t.mu.Unlock()
}

// OnNewToken registers a discovery callback. Must be called before Run.
func (t *Tracker) OnNewToken(cb OnNewToken) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// SetTokenPrice feeds the tracker a price hint so sell-side swaps can be
// valued in USD. Called by the token status tracker on refresh.
func (t *Tracker) SetTokenPrice(token evm.Address, priceNative decimal.Decimal, decimals uint8) {
	t.mu.Lock()
	t.priceHints[token] = priceHint{priceNative: priceNative, decimals: decimals}
	t.mu.Unlock()
}

// Degraded reports whether the pending-tx stream has been down past the
// configured threshold.
func (t *Tracker) Degraded() bool { return t.degraded.Load() }

// LastSuccess returns the unix time of the last successful ingestion tick.
func (t *Tracker) LastSuccess() time.Time { return time.Unix(t.lastSuccess.Load(), 0) }

// Run ingests until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("mempool tracker already running")
	}
	defer t.running.Store(false)

	log.Info().
		Str("chain", t.chain.Name).
		Str("router", string(t.chain.Router)).
		Bool("mev_detection", t.config.MEVDetection).
		Msg("mempool: tracker starting")

	t.refreshNetwork(ctx)
	t.lastSuccess.Store(time.Now().Unix())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.refreshLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		t.cleanupLoop(ctx)
	}()

	backoff := t.config.ReconnectBaseDelay
	downSince := time.Time{}
	for ctx.Err() == nil {
		ch, err := t.adapter.SubscribePendingTxs(ctx)
		if err != nil {
			if downSince.IsZero() {
				downSince = time.Now()
			}
			if time.Since(downSince) >= t.config.DegradedAfter && !t.degraded.Load() {
				t.degraded.Store(true)
				log.Error().Str("chain", t.chain.Name).Msg("mempool: stream down past threshold, tracker degraded")
			}
			log.Warn().Err(err).Dur("backoff", backoff).Msg("mempool: subscribe failed, polling blocks")

			// Poll mined blocks at the chain cadence until the backoff
			// expires, then try to subscribe again.
			t.pollBlocks(ctx, backoff)
			backoff *= 2
			if backoff > t.config.ReconnectMaxDelay {
				backoff = t.config.ReconnectMaxDelay
			}
			continue
		}

		backoff = t.config.ReconnectBaseDelay
		downSince = time.Time{}
		if t.degraded.Swap(false) {
			log.Info().Str("chain", t.chain.Name).Msg("mempool: stream recovered")
		}
		t.reconnects.Add(1)

		t.consume(ctx, ch)
	}

	wg.Wait()
	log.Info().Str("chain", t.chain.Name).Msg("mempool: tracker stopped")
	return ctx.Err()
}

// consume drains the stream until it closes or ctx is cancelled.
func (t *Tracker) consume(ctx context.Context, ch <-chan evm.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-ch:
			if !ok {
				log.Warn().Str("chain", t.chain.Name).Msg("mempool: stream closed")
				return
			}
			t.Ingest(tx)
		}
	}
}

// Ingest decodes and records one transaction. Exported so the block
// poller and tests share the same path as the live stream.
func (t *Tracker) Ingest(tx evm.Transaction) {
	t.txsSeen.Add(1)
	t.lastSuccess.Store(time.Now().Unix())

	if tx.To != t.chain.Router && !evm.IsSwapSelector(tx.Input) {
		return
	}
	call, err := evm.DecodeSwapCall(tx.Input)
	if err != nil {
		return
	}
	token := evm.TargetToken(call.Path, t.chain.WrappedNative)
	if token.IsZero() {
		return
	}
	t.swapsDecoded.Add(1)

	isBuy := call.NativeInput && tx.ValueNative.IsPositive()

	t.mu.Lock()
	if t.gasObserve != nil && tx.GasPrice.IsPositive() {
		t.gasObserve(tx.GasPrice)
	}

	amountNative := tx.ValueNative
	if !isBuy {
		amountNative = t.sellAmountNativeLocked(token, call.AmountInRaw)
	}
	amountUSD := amountNative.Mul(t.nativeUSD)

	swap := PendingSwap{
		TxHash:       tx.Hash,
		From:         tx.From,
		Token:        token,
		IsBuy:        isBuy,
		AmountNative: amountNative,
		AmountUSD:    amountUSD,
		GasPriceGwei: tx.GasPrice,
		SeenAt:       time.Now(),
	}

	window := t.pruneLocked(token, time.Now())
	window = append(window, swap)
	if len(window) > t.config.MaxPendingPerToken {
		window = window[len(window)-t.config.MaxPendingPerToken:]
	}
	t.pending[token] = window

	_, known := t.seenTokens[token]
	if !known {
		t.seenTokens[token] = swap.SeenAt
	}
	callbacks := t.callbacks
	baseFee := t.baseFeeGwei
	t.mu.Unlock()

	if !known {
		t.newTokens.Add(1)
		for _, cb := range callbacks {
			cb(token, swap)
		}
		if t.events != nil {
			t.events.Publish(bus.TopicNewToken, bus.NewTokenEvent{Token: token, TxHash: tx.Hash})
		}
	}

	if t.events != nil && amountUSD.GreaterThanOrEqual(t.config.LargeTxAlertUSD) {
		t.events.Publish(bus.TopicLargeTx, bus.LargeTransactionEvent{
			Token:     token,
			TxHash:    tx.Hash,
			AmountUSD: amountUSD,
			IsBuy:     isBuy,
		})
	}
	if t.events != nil && t.sandwichCandidate(swap, baseFee) {
		t.events.Publish(bus.TopicSandwich, bus.SandwichOpportunityEvent{
			Token:     token,
			VictimTx:  tx.Hash,
			AmountUSD: amountUSD,
		})
	}
}

// sellAmountNativeLocked values a token-side input amount using the last
// known price hint. Zero when no hint exists yet.
func (t *Tracker) sellAmountNativeLocked(token evm.Address, amountInRaw decimal.Decimal) decimal.Decimal {
	hint, ok := t.priceHints[token]
	if !ok || !hint.priceNative.IsPositive() {
		return decimal.Zero
	}
	whole := amountInRaw.Shift(-int32(hint.decimals))
	return whole.Mul(hint.priceNative)
}

// Metrics returns the rolling-window snapshot for token.
func (t *Tracker) Metrics(token evm.Address) TokenMetrics {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.pruneLocked(token, now)
	t.pending[token] = window

	m := TokenMetrics{BaseFeeGwei: t.baseFeeGwei}
	for _, s := range window {
		m.PendingCount++
		if s.IsBuy {
			m.BuyPressure++
			m.BuyVolumeUSD = m.BuyVolumeUSD.Add(s.AmountUSD)
			if s.AmountUSD.GreaterThanOrEqual(t.config.LargeBuyUSD) {
				m.LargeBuys++
			}
		} else {
			m.SellPressure++
			m.SellVolumeUSD = m.SellVolumeUSD.Add(s.AmountUSD)
		}
	}
	return m
}

// PendingSwaps returns the current window for token, oldest first.
func (t *Tracker) PendingSwaps(token evm.Address) []PendingSwap {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.pruneLocked(token, now)
	t.pending[token] = window

	out := make([]PendingSwap, len(window))
	copy(out, window)
	sort.Slice(out, func(i, j int) bool { return out[i].SeenAt.Before(out[j].SeenAt) })
	return out
}

// BestSandwich returns the top victim candidate for token, or nil.
// A candidate is a buy worth at least the configured minimum whose gas
// price leaves headroom below twice the base fee.
func (t *Tracker) BestSandwich(token evm.Address) *SandwichOpportunity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *PendingSwap
	for i := range t.pending[token] {
		s := &t.pending[token][i]
		if !t.sandwichCandidate(*s, t.baseFeeGwei) {
			continue
		}
		if best == nil || s.AmountUSD.GreaterThan(best.AmountUSD) {
			best = s
		}
	}
	if best == nil {
		return nil
	}

	impact := estimatePriceImpactPct(best.AmountUSD)
	profit := best.AmountUSD.Mul(impact).Div(decimal.NewFromInt(100)).Mul(decimal.NewFromFloat(0.5))
	return &SandwichOpportunity{
		Victim:             *best,
		EstPriceImpactPct:  impact,
		PotentialProfitUSD: profit,
	}
}

// sandwichCandidate applies the victim filter against a base fee snapshot.
func (t *Tracker) sandwichCandidate(s PendingSwap, baseFeeGwei decimal.Decimal) bool {
	if !s.IsBuy || s.AmountUSD.LessThan(t.config.MinSandwichVictimUSD) {
		return false
	}
	headroom := baseFeeGwei.Mul(decimal.NewFromInt(2))
	return headroom.IsPositive() && s.GasPriceGwei.LessThan(headroom)
}

// estimatePriceImpactPct is a coarse constant-product estimate keyed on
// trade size alone, used only to rank victims.
func estimatePriceImpactPct(amountUSD decimal.Decimal) decimal.Decimal {
	denom := amountUSD.Add(decimal.NewFromInt(50_000))
	if !denom.IsPositive() {
		return decimal.Zero
	}
	return amountUSD.Div(denom).Mul(decimal.NewFromInt(100))
}

// pruneLocked drops swaps older than the window. Callers hold t.mu.
func (t *Tracker) pruneLocked(token evm.Address, now time.Time) []PendingSwap {
	window := t.pending[token]
	cutoff := now.Add(-t.config.Window)
	i := 0
	for i < len(window) && window[i].SeenAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		window = window[i:]
	}
	return window
}

// pollBlocks ingests mined-block transactions for roughly d, at the
// chain's block cadence. Fallback path when the stream is down.
func (t *Tracker) pollBlocks(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(t.chain.BlockTime())
	defer ticker.Stop()

	var lastBlock uint64
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := t.adapter.BlockNumber(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("mempool: poll block number failed")
			continue
		}
		if head == lastBlock {
			continue
		}
		if lastBlock == 0 || head < lastBlock {
			lastBlock = head - 1
		}

		for n := lastBlock + 1; n <= head; n++ {
			block, err := t.adapter.BlockWithTxs(ctx, n)
			if err != nil {
				log.Warn().Err(err).Uint64("block", n).Msg("mempool: poll block fetch failed")
				break
			}
			t.IngestBlock(block)
			lastBlock = n
		}
	}
}

// IngestBlock records a mined block's swaps and runs MEV classification
// over its transaction sequence.
func (t *Tracker) IngestBlock(block *evm.Block) {
	if block == nil {
		return
	}
	if block.BaseFeeGwei.IsPositive() {
		t.mu.Lock()
		t.baseFeeGwei = block.BaseFeeGwei
		t.mu.Unlock()
	}
	for _, tx := range block.Txs {
		t.Ingest(tx)
	}
	if t.config.MEVDetection {
		t.mev.classifyBlock(t.chain.Router, block)
	}
}

// IsMEV reports whether hash was classified as part of an MEV pattern.
func (t *Tracker) IsMEV(hash evm.Hash) (MEVKind, bool) { return t.mev.lookup(hash) }

func (t *Tracker) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(t.config.BaseFeeRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refreshNetwork(ctx)
		}
	}
}

func (t *Tracker) refreshNetwork(ctx context.Context) {
	if fee, err := t.adapter.BaseFee(ctx); err == nil {
		t.mu.Lock()
		t.baseFeeGwei = fee
		t.mu.Unlock()
	}
	if usd, err := t.adapter.NativePriceUSD(ctx); err == nil && usd.IsPositive() {
		t.mu.Lock()
		t.nativeUSD = usd
		t.mu.Unlock()
	}
}

func (t *Tracker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(t.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanup()
		}
	}
}

func (t *Tracker) cleanup() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for token := range t.pending {
		window := t.pruneLocked(token, now)
		if len(window) == 0 {
			delete(t.pending, token)
			continue
		}
		t.pending[token] = window
	}
}

// Stats is a snapshot of tracker counters.
type Stats struct {
	TxsSeen       int64 `json:"txs_seen"`
	SwapsDecoded  int64 `json:"swaps_decoded"`
	NewTokens     int64 `json:"new_tokens"`
	Reconnects    int64 `json:"reconnects"`
	TrackedTokens int   `json:"tracked_tokens"`
	Degraded      bool  `json:"degraded"`
	MEVSandwiches int64 `json:"mev_sandwiches"`
	MEVFrontruns  int64 `json:"mev_frontruns"`
	MEVArbitrage  int64 `json:"mev_arbitrage"`
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	tracked := len(t.pending)
	t.mu.RUnlock()
	return Stats{
		TxsSeen:       t.txsSeen.Load(),
		SwapsDecoded:  t.swapsDecoded.Load(),
		NewTokens:     t.newTokens.Load(),
		Reconnects:    t.reconnects.Load(),
		TrackedTokens: tracked,
		Degraded:      t.degraded.Load(),
		MEVSandwiches: t.mev.sandwiches.Load(),
		MEVFrontruns:  t.mev.frontruns.Load(),
		MEVArbitrage:  t.mev.arbitrage.Load(),
	}
}
