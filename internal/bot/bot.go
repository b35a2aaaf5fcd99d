package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/ai"
	"github.com/hornet-trading/hornet/internal/bus"
	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/gas"
	"github.com/hornet-trading/hornet/internal/mempool"
	"github.com/hornet-trading/hornet/internal/nonce"
	"github.com/hornet-trading/hornet/internal/risk"
	"github.com/hornet-trading/hornet/internal/store"
	"github.com/hornet-trading/hornet/internal/strategy"
	"github.com/hornet-trading/hornet/internal/tokens"
	"github.com/hornet-trading/hornet/internal/trade"
)

// ---------------------------------------------------------------------------
// Orchestrator — auto-trade cycle, supervision, deadlock recovery
// ---------------------------------------------------------------------------

// Mode is the bot operating mode.
type Mode string

const (
	// ModeAuto runs the full autonomous cycle.
	ModeAuto Mode = "auto"
	// ModeManual keeps background refreshes alive but never trades on
	// its own.
	ModeManual Mode = "manual"
	// ModePaused suspends the cycle entirely.
	ModePaused Mode = "paused"
)

// Config configures the orchestrator.
type Config struct {
	// CycleInterval is the auto-trade loop cadence.
	CycleInterval time.Duration `yaml:"cycle_interval"`

	// WriterLockTimeout and ReaderLockTimeout bound subsystem lock
	// acquisition; expiry surfaces LockContention instead of blocking.
	WriterLockTimeout time.Duration `yaml:"writer_lock_timeout"`
	ReaderLockTimeout time.Duration `yaml:"reader_lock_timeout"`

	// DeadlockThreshold is how stale a subsystem's last-success stamp
	// may grow before the health task rebuilds it.
	DeadlockThreshold time.Duration `yaml:"deadlock_threshold"`
	// HealthInterval is the supervision cadence.
	HealthInterval time.Duration `yaml:"health_interval"`

	// AutoBuyPct sizes autonomous buys as a share of the wallet balance.
	AutoBuyPct decimal.Decimal `yaml:"auto_buy_pct"`

	// AutoTuningEnabled lets the bot adjust the auto-trade threshold
	// from the realized win rate.
	AutoTuningEnabled bool `yaml:"auto_tuning_enabled"`

	// RiskTolerance feeds the strategy optimizer's success bar.
	RiskTolerance strategy.RiskTolerance `yaml:"risk_tolerance"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CycleInterval:     30 * time.Second,
		WriterLockTimeout: 5 * time.Second,
		ReaderLockTimeout: 2 * time.Second,
		DeadlockThreshold: 60 * time.Second,
		HealthInterval:    60 * time.Second,
		AutoBuyPct:        decimal.NewFromInt(2),
		RiskTolerance:     strategy.RiskMedium,
	}
}

// Deps are the wired subsystems the bot supervises. All are required
// except Events and State.
type Deps struct {
	Adapter  evm.ChainAdapter
	Events   *bus.Bus
	State    store.Store
	Nonces   *nonce.Manager
	GasOpt   *gas.Optimizer
	Pool     *mempool.Tracker
	Analyzer *risk.Analyzer
	View     *tokens.Tracker
	Strat    *strategy.Optimizer
	Trades   *trade.Manager
	AI       *ai.Coordinator

	// ViewConfig rebuilds the token tracker during recovery.
	ViewConfig tokens.Config
}

// Bot owns the subsystem lifecycles and runs the auto-trade cycle.
type Bot struct {
	config Config
	deps   Deps
	chain  evm.ChainConfig

	mu         sync.RWMutex
	view       *tokens.Tracker // swapped on recovery
	mode       Mode
	generation int64

	cycles      atomic.Int64
	cycleErrors atomic.Int64
	recoveries  atomic.Int64
	autoTrades  atomic.Int64
}

// New creates the orchestrator and wires the cross-subsystem callbacks.
func New(config Config, deps Deps) *Bot {
	if config.CycleInterval <= 0 {
		config.CycleInterval = 30 * time.Second
	}
	if config.DeadlockThreshold <= 0 {
		config.DeadlockThreshold = 60 * time.Second
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = 60 * time.Second
	}
	if config.WriterLockTimeout <= 0 {
		config.WriterLockTimeout = 5 * time.Second
	}
	if config.ReaderLockTimeout <= 0 {
		config.ReaderLockTimeout = 2 * time.Second
	}
	b := &Bot{
		config: config,
		deps:   deps,
		chain:  deps.Adapter.Chain(),
		view:   deps.View,
		mode:   ModeAuto,
	}
	if deps.Pool != nil {
		// Discovery path: first mempool sighting starts tracking.
		deps.Pool.OnNewToken(func(token evm.Address, first mempool.PendingSwap) {
			if err := b.currentView().Add(context.Background(), token); err != nil {
				log.Warn().Err(err).Str("token", string(token)).Msg("bot: discovery add failed")
			}
		})
		if deps.GasOpt != nil {
			deps.Pool.SetGasObserver(deps.GasOpt.Observe)
		}
	}
	b.wire(b.view)
	return b
}

// wire hooks a view instance into the surrounding subsystems. Called at
// construction and again after every recovery swap.
func (b *Bot) wire(view *tokens.Tracker) {
	view.OnPriceAlert(func(alert tokens.PriceAlert) {
		// Resting orders re-evaluate on every significant move.
		b.deps.Trades.EvaluateOrders(context.Background(), b.priceOf)
	})
}

// currentView returns the live token tracker under the reader timeout.
// Contention past the bound returns the last known instance rather than
// blocking the caller.
func (b *Bot) currentView() *tokens.Tracker {
	view, err := b.readLocked(func() *tokens.Tracker { return b.view })
	if err != nil {
		log.Warn().Err(err).Msg("bot: view read contended")
		return b.deps.View
	}
	return view
}

// readLocked runs fn under the read lock with the bounded timeout.
func (b *Bot) readLocked(fn func() *tokens.Tracker) (*tokens.Tracker, error) {
	deadline := time.Now().Add(b.config.ReaderLockTimeout)
	for !b.mu.TryRLock() {
		if time.Now().After(deadline) {
			return nil, errs.New(errs.LockContention, "bot: read lock timeout after %s", b.config.ReaderLockTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	defer b.mu.RUnlock()
	return fn(), nil
}

// writeLocked runs fn under the write lock with the bounded timeout.
func (b *Bot) writeLocked(fn func()) error {
	deadline := time.Now().Add(b.config.WriterLockTimeout)
	for !b.mu.TryLock() {
		if time.Now().After(deadline) {
			return errs.New(errs.LockContention, "bot: write lock timeout after %s", b.config.WriterLockTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	defer b.mu.Unlock()
	fn()
	return nil
}

// Mode returns the current operating mode.
func (b *Bot) Mode() Mode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

// SetMode transitions the operating mode and announces it on the bus.
func (b *Bot) SetMode(mode Mode) error {
	switch mode {
	case ModeAuto, ModeManual, ModePaused:
	default:
		return errs.New(errs.ConfigInvalid, "bot: unknown mode %q", mode)
	}
	var from Mode
	if err := b.writeLocked(func() {
		from = b.mode
		b.mode = mode
	}); err != nil {
		return err
	}
	if from == mode {
		return nil
	}
	log.Info().Str("from", string(from)).Str("to", string(mode)).Msg("bot: mode changed")
	if b.deps.Events != nil {
		b.deps.Events.Publish(bus.TopicBotMode, bus.BotModeEvent{From: string(from), To: string(mode)})
	}
	return nil
}

// Run drives the subsystem loops, the health task and the auto-trade
// cycle until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if b.deps.Pool != nil {
		wg.Add(1)
		go func() { defer wg.Done(); _ = b.deps.Pool.Run(ctx) }()
	}
	if b.deps.GasOpt != nil {
		wg.Add(1)
		go func() { defer wg.Done(); b.deps.GasOpt.Run(ctx) }()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(b.config.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.checkHealth(ctx)
			}
		}
	}()

	log.Info().
		Str("chain", b.chain.Name).
		Dur("cycle", b.config.CycleInterval).
		Msg("bot: running")

	ticker := time.NewTicker(b.config.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			if b.Mode() == ModePaused {
				continue
			}
			if err := b.Cycle(ctx); err != nil {
				b.cycleErrors.Add(1)
				log.Warn().Err(err).Msg("bot: cycle failed")
			}
		}
	}
}

// Cycle runs one pass of the auto-trade loop: refresh the tracked view,
// evaluate resting orders, consume armed sandwiches, then act on every
// recommendation that clears the autonomy bar.
func (b *Bot) Cycle(ctx context.Context) error {
	b.cycles.Add(1)
	gen := b.Generation()

	view := b.currentView()
	view.UpdateAll(ctx)

	b.deps.Trades.EvaluateOrders(ctx, b.priceOf)
	b.deps.Trades.AutoSandwichTick(ctx)

	if b.Mode() != ModeAuto {
		return nil
	}

	for _, d := range b.deps.AI.Recommendations(ctx) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b.Generation() != gen {
			// The view was swapped mid-cycle; stale decisions die here.
			log.Info().Msg("bot: generation changed, abandoning cycle")
			return nil
		}
		if !b.deps.AI.ShouldAutoTrade(d) {
			continue
		}
		if err := b.execute(ctx, d); err != nil {
			b.cycleErrors.Add(1)
			log.Warn().Err(err).
				Str("token", string(d.Token)).
				Str("action", string(d.Action)).
				Msg("bot: auto-trade failed")
		}
	}

	if b.config.AutoTuningEnabled {
		b.tune()
	}
	return nil
}

// execute enacts one autonomous decision.
func (b *Bot) execute(ctx context.Context, d ai.Decision) error {
	switch d.Action {
	case ai.ActionBuy:
		balance, err := b.deps.Adapter.Balance(ctx, b.deps.Trades.Wallet())
		if err != nil {
			return err
		}
		amount := balance.Mul(b.config.AutoBuyPct).Div(decimal.NewFromInt(100))
		if !amount.IsPositive() {
			return nil
		}
		_, err = b.deps.Trades.Buy(ctx, d.Token, amount, nil)
		if err == nil {
			b.autoTrades.Add(1)
		}
		return err

	case ai.ActionSell:
		if pos := b.deps.Trades.Position(d.Token); pos == nil || !pos.Amount.IsPositive() {
			return nil
		}
		_, err := b.deps.Trades.Sell(ctx, d.Token, decimal.NewFromInt(100), decimal.Zero, nil)
		if err == nil {
			b.autoTrades.Add(1)
		}
		return err

	case ai.ActionSandwich:
		return b.executeSandwich(ctx, d)

	default:
		return nil
	}
}

// executeSandwich picks the best victim, sizes the attempt through the
// strategy optimizer and hands it to the trade manager. MEV strategies
// are refused while the mempool feed is degraded.
func (b *Bot) executeSandwich(ctx context.Context, d ai.Decision) error {
	if b.deps.Pool == nil || b.deps.Pool.Degraded() {
		return errs.New(errs.MempoolDegraded, "bot: mempool degraded, sandwich refused")
	}
	opp := b.deps.Pool.BestSandwich(d.Token)
	if opp == nil {
		return nil
	}

	nativeUSD, err := b.deps.Adapter.NativePriceUSD(ctx)
	if err != nil {
		nativeUSD = decimal.Zero
	}
	input := strategy.SimulationInput{
		VictimAmountUSD:    opp.Victim.AmountUSD,
		BaseGasGwei:        opp.Victim.GasPriceGwei,
		NativePriceUSD:     nativeUSD,
		Congestion:         b.deps.GasOpt.Congestion(),
		CompetitorPressure: 0.5,
	}
	best, err := b.deps.Strat.Optimize(input, b.config.RiskTolerance, d.Confidence)
	if err != nil {
		return err
	}

	_, err = b.deps.Trades.ExecuteSandwich(ctx, trade.SandwichParams{
		Token:           d.Token,
		VictimTx:        opp.Victim.TxHash,
		AmountPercent:   best.Scenario.AmountFraction,
		FrontMultiplier: decimal.NewFromFloat(best.Scenario.GasMultiplier),
		UsePrivateRelay: best.Scenario.UsePrivateRelay,
	})
	if err == nil {
		b.autoTrades.Add(1)
	}
	return err
}

// priceOf feeds order evaluation from the tracked view.
func (b *Bot) priceOf(token evm.Address) decimal.Decimal {
	if status := b.currentView().Get(token); status != nil {
		return status.PriceNative
	}
	return decimal.Zero
}

// tune nudges the auto-trade threshold against the realized win rate:
// losing streaks raise the bar, strong runs lower it.
func (b *Bot) tune() {
	history := b.deps.Trades.History(20)
	if len(history) < 5 {
		return
	}
	wins := 0
	for _, h := range history {
		if h.Success {
			wins++
		}
	}
	rate := float64(wins) / float64(len(history))
	threshold := b.deps.AI.AutoTradeThreshold()
	switch {
	case rate < 0.4:
		b.deps.AI.SetAutoTradeThreshold(threshold + 0.05)
	case rate > 0.7:
		b.deps.AI.SetAutoTradeThreshold(threshold - 0.05)
	}
	if after := b.deps.AI.AutoTradeThreshold(); after != threshold {
		log.Info().
			Float64("win_rate", rate).
			Float64("threshold", after).
			Msg("bot: auto-trade threshold tuned")
	}
}

// Generation returns the recovery generation; it bumps on every swap.
func (b *Bot) Generation() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// checkHealth inspects subsystem last-success stamps and rebuilds a
// tracker that has gone silent past the deadlock threshold.
func (b *Bot) checkHealth(ctx context.Context) {
	threshold := b.config.DeadlockThreshold

	if stale := time.Since(b.currentView().LastSuccess()); stale > threshold {
		log.Warn().Dur("stale", stale).Msg("bot: token tracker stuck, rebuilding")
		if err := b.recoverView(ctx); err != nil {
			log.Error().Err(err).Msg("bot: tracker recovery failed")
		}
	}

	if b.deps.Pool != nil && !b.deps.Pool.Degraded() {
		if stale := time.Since(b.deps.Pool.LastSuccess()); stale > threshold {
			log.Warn().Dur("stale", stale).Msg("bot: mempool feed silent")
		}
	}
}

// recoverView builds a fresh token tracker, replays the tracked set into
// it and atomically swaps it in. Open positions live in the trade
// manager and are untouched.
func (b *Bot) recoverView(ctx context.Context) error {
	old := b.currentView()
	tracked := old.Tracked()

	fresh := tokens.NewTracker(b.deps.ViewConfig, b.chain, b.deps.Adapter,
		b.deps.Analyzer, b.deps.Pool, b.deps.Events)
	for _, token := range tracked {
		if err := fresh.Add(ctx, token); err != nil {
			log.Warn().Err(err).Str("token", string(token)).Msg("bot: recovery re-add failed")
		}
	}
	b.wire(fresh)

	if err := b.writeLocked(func() {
		b.view = fresh
		b.generation++
	}); err != nil {
		return err
	}

	b.deps.AI.SetView(fresh)
	b.deps.Trades.SetView(fresh)
	b.recoveries.Add(1)

	log.Info().Int("tokens", len(tracked)).Msg("bot: token tracker rebuilt")
	if b.deps.Events != nil {
		b.deps.Events.Publish(bus.TopicBotRecovered, bus.SubsystemRecoveredEvent{
			Subsystem: "tokens",
			Tokens:    len(tracked),
		})
	}
	return nil
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Mode        Mode  `json:"mode"`
	Generation  int64 `json:"generation"`
	Cycles      int64 `json:"cycles"`
	CycleErrors int64 `json:"cycle_errors"`
	Recoveries  int64 `json:"recoveries"`
	AutoTrades  int64 `json:"auto_trades"`
}

func (b *Bot) Stats() Stats {
	return Stats{
		Mode:        b.Mode(),
		Generation:  b.Generation(),
		Cycles:      b.cycles.Load(),
		CycleErrors: b.cycleErrors.Load(),
		Recoveries:  b.recoveries.Load(),
		AutoTrades:  b.autoTrades.Load(),
	}
}
