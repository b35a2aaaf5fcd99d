package ai

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/gas"
	"github.com/hornet-trading/hornet/internal/mempool"
	"github.com/hornet-trading/hornet/internal/tokens"
)

// ---------------------------------------------------------------------------
// AI Coordinator — cached predictor frontend
// ---------------------------------------------------------------------------

// Action is what the predictor suggests doing with a token.
type Action string

const (
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionMonitor  Action = "monitor"
	ActionAvoid    Action = "avoid"
	ActionSandwich Action = "sandwich"
)

// Decision is one prediction with its confidence.
type Decision struct {
	Token      evm.Address `json:"token"`
	Action     Action      `json:"action"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason,omitempty"`
	At         time.Time   `json:"at"`
}

// Features is the flattened model input gathered from the mempool, the
// token view and the risk profile.
type Features struct {
	Token           evm.Address     `json:"token"`
	BuyPressure     int             `json:"buy_pressure"`
	SellPressure    int             `json:"sell_pressure"`
	PendingCount    int             `json:"pending_count"`
	LargeBuys       int             `json:"large_buys"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	LiquidityNative decimal.Decimal `json:"liquidity_native"`
	RiskScore       int             `json:"risk_score"`
	Safety          string          `json:"safety"`
	Congestion      string          `json:"congestion"`
}

// Predictor is the underlying model. Implementations must respect ctx.
type Predictor interface {
	Predict(ctx context.Context, features Features) (Decision, error)
}

// Config configures the coordinator.
type Config struct {
	// AutoTradeEnabled gates ShouldAutoTrade globally.
	AutoTradeEnabled bool `yaml:"auto_trade_enabled"`

	// AutoTradeThreshold is the minimum confidence for autonomous action.
	AutoTradeThreshold float64 `yaml:"auto_trade_threshold"`

	// DecisionTTL is how long a cached decision stays fresh.
	DecisionTTL time.Duration `yaml:"decision_ttl"`

	// PredictTimeout bounds one predictor call; on expiry the token gets
	// a neutral monitor decision.
	PredictTimeout time.Duration `yaml:"predict_timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AutoTradeEnabled:   false,
		AutoTradeThreshold: 0.75,
		DecisionTTL:        5 * time.Minute,
		PredictTimeout:     5 * time.Second,
	}
}

// Coordinator fronts the predictor with a per-token decision cache.
type Coordinator struct {
	config    Config
	predictor Predictor
	view      *tokens.Tracker
	pool      *mempool.Tracker
	gasOpt    *gas.Optimizer

	mu    sync.RWMutex
	cache map[evm.Address]Decision

	predictions atomic.Int64
	cacheHits   atomic.Int64
	timeouts    atomic.Int64
	lastSuccess atomic.Int64
}

// NewCoordinator creates the coordinator. view, pool and gasOpt may be
// nil; missing sources just leave their features zeroed.
func NewCoordinator(config Config, predictor Predictor, view *tokens.Tracker, pool *mempool.Tracker, gasOpt *gas.Optimizer) *Coordinator {
	return &Coordinator{
		config:    config,
		predictor: predictor,
		view:      view,
		pool:      pool,
		gasOpt:    gasOpt,
		cache:     make(map[evm.Address]Decision),
	}
}

// SetView swaps the token view. The orchestrator calls this after
// rebuilding a stuck tracker.
func (c *Coordinator) SetView(view *tokens.Tracker) {
	c.mu.Lock()
	c.view = view
	c.mu.Unlock()
}

func (c *Coordinator) tokenView() *tokens.Tracker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Decide returns a fresh-enough cached decision or consults the
// predictor. A slow or failing predictor yields a neutral monitor
// decision, which is cached like any other.
func (c *Coordinator) Decide(ctx context.Context, token evm.Address) Decision {
	c.mu.RLock()
	cached, ok := c.cache[token]
	c.mu.RUnlock()
	if ok && time.Since(cached.At) < c.config.DecisionTTL {
		c.cacheHits.Add(1)
		return cached
	}

	features := c.gatherFeatures(token)

	predictCtx, cancel := context.WithTimeout(ctx, c.config.PredictTimeout)
	defer cancel()

	decision, err := c.predictor.Predict(predictCtx, features)
	if err != nil {
		c.timeouts.Add(1)
		log.Warn().Err(err).Str("token", string(token)).Msg("ai: predictor unavailable, holding at monitor")
		decision = Decision{
			Token:      token,
			Action:     ActionMonitor,
			Confidence: 0,
			Reason:     "predictor unavailable",
		}
	}
	decision.Token = token
	decision.At = time.Now()

	c.predictions.Add(1)
	c.lastSuccess.Store(time.Now().Unix())

	c.mu.Lock()
	c.cache[token] = decision
	c.mu.Unlock()
	return decision
}

// AutoTradeThreshold returns the current autonomy bar.
func (c *Coordinator) AutoTradeThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.AutoTradeThreshold
}

// SetAutoTradeThreshold adjusts the autonomy bar at runtime, clamped to
// [0.5, 0.95]. The auto-tuner raises it on losing streaks.
func (c *Coordinator) SetAutoTradeThreshold(v float64) {
	if v < 0.5 {
		v = 0.5
	} else if v > 0.95 {
		v = 0.95
	}
	c.mu.Lock()
	c.config.AutoTradeThreshold = v
	c.mu.Unlock()
}

// ShouldAutoTrade reports whether a decision clears the autonomy bar.
func (c *Coordinator) ShouldAutoTrade(d Decision) bool {
	if !c.config.AutoTradeEnabled || d.Confidence < c.AutoTradeThreshold() {
		return false
	}
	switch d.Action {
	case ActionBuy, ActionSell, ActionSandwich:
		return true
	default:
		return false
	}
}

// Recommendations decides every tracked token and returns the results
// sorted by confidence, highest first.
func (c *Coordinator) Recommendations(ctx context.Context) []Decision {
	view := c.tokenView()
	if view == nil {
		return nil
	}
	tracked := view.Tracked()
	out := make([]Decision, 0, len(tracked))
	for _, token := range tracked {
		if ctx.Err() != nil {
			break
		}
		out = append(out, c.Decide(ctx, token))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Invalidate drops the cached decision for token, forcing a re-predict.
func (c *Coordinator) Invalidate(token evm.Address) {
	c.mu.Lock()
	delete(c.cache, token)
	c.mu.Unlock()
}

// LastSuccess returns the unix time of the last completed decision.
func (c *Coordinator) LastSuccess() time.Time { return time.Unix(c.lastSuccess.Load(), 0) }

func (c *Coordinator) gatherFeatures(token evm.Address) Features {
	f := Features{Token: token}
	if c.pool != nil {
		m := c.pool.Metrics(token)
		f.BuyPressure = m.BuyPressure
		f.SellPressure = m.SellPressure
		f.PendingCount = m.PendingCount
		f.LargeBuys = m.LargeBuys
	}
	if view := c.tokenView(); view != nil {
		if status := view.Get(token); status != nil {
			f.PriceUSD = status.PriceUSD
			f.LiquidityNative = status.LiquidityNative
			f.Safety = status.Safety.String()
			if status.Risk != nil {
				f.RiskScore = status.Risk.Score
			}
		}
	}
	if c.gasOpt != nil {
		f.Congestion = c.gasOpt.Congestion().String()
	}
	return f
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Predictions int64 `json:"predictions"`
	CacheHits   int64 `json:"cache_hits"`
	Timeouts    int64 `json:"timeouts"`
	Cached      int   `json:"cached"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	cached := len(c.cache)
	c.mu.RUnlock()
	return Stats{
		Predictions: c.predictions.Load(),
		CacheHits:   c.cacheHits.Load(),
		Timeouts:    c.timeouts.Load(),
		Cached:      cached,
	}
}

// ---------------------------------------------------------------------------
// Heuristic predictor
// ---------------------------------------------------------------------------

// HeuristicPredictor is a rule-based fallback model used when no external
// predictor is wired. It reads pressure and safety only.
type HeuristicPredictor struct{}

func (HeuristicPredictor) Predict(_ context.Context, f Features) (Decision, error) {
	switch {
	case f.Safety == "red":
		return Decision{Action: ActionAvoid, Confidence: 0.9, Reason: "red safety level"}, nil
	case f.RiskScore >= 75:
		return Decision{Action: ActionAvoid, Confidence: 0.8, Reason: "risk score"}, nil
	case f.BuyPressure >= 5 && f.BuyPressure >= 3*f.SellPressure && f.Safety == "green":
		return Decision{Action: ActionBuy, Confidence: 0.8, Reason: "buy pressure"}, nil
	case f.SellPressure >= 5 && f.SellPressure >= 3*f.BuyPressure:
		return Decision{Action: ActionSell, Confidence: 0.7, Reason: "sell pressure"}, nil
	case f.LargeBuys > 0 && f.Safety == "green":
		return Decision{Action: ActionSandwich, Confidence: 0.6, Reason: "large buys flowing"}, nil
	default:
		return Decision{Action: ActionMonitor, Confidence: 0.5, Reason: "no edge"}, nil
	}
}
