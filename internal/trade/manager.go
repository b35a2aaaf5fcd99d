package trade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/bus"
	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/gas"
	"github.com/hornet-trading/hornet/internal/mempool"
	"github.com/hornet-trading/hornet/internal/nonce"
	"github.com/hornet-trading/hornet/internal/store"
	"github.com/hornet-trading/hornet/internal/strategy"
	"github.com/hornet-trading/hornet/internal/tokens"
)

// ---------------------------------------------------------------------------
// Trade Manager — pre-flight, submission pipeline, positions and orders
// ---------------------------------------------------------------------------

// Config configures the trade manager.
type Config struct {
	// Wallet is the trading account the signing node controls.
	Wallet evm.Address `yaml:"wallet"`

	// DefaultSlippagePct bounds ordinary swap output shortfall.
	DefaultSlippagePct decimal.Decimal `yaml:"default_slippage_pct"`

	// EmergencySlippagePct applies to panic unwinds.
	EmergencySlippagePct decimal.Decimal `yaml:"emergency_slippage_pct"`

	// GasHeadroomPct pads the gas estimate before submission.
	GasHeadroomPct int64 `yaml:"gas_headroom_pct"`

	// MaxAttempts bounds the submission retry loop.
	MaxAttempts int `yaml:"max_attempts"`

	// ReceiptTimeout is the per-attempt receipt deadline; ReceiptPoll is
	// the polling cadence within it.
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
	ReceiptPoll    time.Duration `yaml:"receipt_poll"`

	// MaxPositionSizePct caps one buy as a share of the wallet balance.
	MaxPositionSizePct decimal.Decimal `yaml:"max_position_size_pct"`

	// ReservePercent of the wallet balance is never spent.
	ReservePercent decimal.Decimal `yaml:"reserve_percent"`

	// Sandwich posture.
	FrontMultiplier     decimal.Decimal `yaml:"front_multiplier"`
	BackMultiplier      decimal.Decimal `yaml:"back_multiplier"`
	EmergencyMultiplier decimal.Decimal `yaml:"emergency_multiplier"`
	AmountPercent       int             `yaml:"amount_percent"`
	VictimWait          time.Duration   `yaml:"victim_wait"`

	// MinFrontrunTargetUSD is the smallest pending buy worth racing.
	MinFrontrunTargetUSD decimal.Decimal `yaml:"min_frontrun_target_usd"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSlippagePct:   decimal.NewFromInt(1),
		EmergencySlippagePct: decimal.NewFromInt(5),
		GasHeadroomPct:       30,
		MaxAttempts:          3,
		ReceiptTimeout:       30 * time.Second,
		ReceiptPoll:          200 * time.Millisecond,
		MaxPositionSizePct:   decimal.NewFromInt(10),
		ReservePercent:       decimal.NewFromInt(10),
		FrontMultiplier:      decimal.NewFromFloat(1.2),
		BackMultiplier:       decimal.NewFromFloat(1.15),
		EmergencyMultiplier:  decimal.NewFromFloat(1.5),
		AmountPercent:        40,
		VictimWait:           time.Minute,
		MinFrontrunTargetUSD: decimal.NewFromInt(5000),
	}
}

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeResult is the settled outcome of one buy or sell.
type TradeResult struct {
	ID             string          `json:"id"`
	Token          evm.Address     `json:"token"`
	Side           Side            `json:"side"`
	TxHash         evm.Hash        `json:"tx_hash,omitempty"`
	Success        bool            `json:"success"`
	AmountNative   decimal.Decimal `json:"amount_native"`
	TokensMoved    decimal.Decimal `json:"tokens_moved"`
	GasPriceGwei   decimal.Decimal `json:"gas_price_gwei"`
	Attempts       int             `json:"attempts"`
	ErrorMsg       string          `json:"error_msg,omitempty"`
	At             time.Time       `json:"at"`
	idempotencyKey string
}

// Manager owns positions and drives every on-chain trade.
type Manager struct {
	config  Config
	chain   evm.ChainConfig
	adapter evm.ChainAdapter
	nonces  *nonce.Manager
	gasOpt  *gas.Optimizer
	strat   *strategy.Optimizer
	view    *tokens.Tracker
	pool    *mempool.Tracker
	events  *bus.Bus
	state   store.Store

	mu           sync.Mutex
	positions    map[evm.Address]*Position
	orders       map[string]*Order
	completed    map[string]TradeResult // idempotency key -> settled result
	history      []TradeResult
	autoSandwich map[evm.Address]int // token -> remaining armed attempts

	tokenLocks sync.Map // evm.Address -> *sync.Mutex

	buys        atomic.Int64
	sells       atomic.Int64
	sandwiches  atomic.Int64
	refusals    atomic.Int64
	lastSuccess atomic.Int64
}

// NewManager creates the trade manager. strat, view, pool, events may be
// nil; state may be nil to disable persistence.
func NewManager(config Config, adapter evm.ChainAdapter, nonces *nonce.Manager, gasOpt *gas.Optimizer,
	strat *strategy.Optimizer, view *tokens.Tracker, pool *mempool.Tracker, events *bus.Bus, state store.Store) *Manager {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	m := &Manager{
		config:    config,
		chain:     adapter.Chain(),
		adapter:   adapter,
		nonces:    nonces,
		gasOpt:    gasOpt,
		strat:     strat,
		view:      view,
		pool:      pool,
		events:    events,
		state:     state,
		positions:    make(map[evm.Address]*Position),
		orders:       make(map[string]*Order),
		completed:    make(map[string]TradeResult),
		autoSandwich: make(map[evm.Address]int),
	}
	m.lastSuccess.Store(time.Now().Unix())
	m.restore()
	return m
}

// SetView swaps the safety view. The orchestrator calls this after
// rebuilding a stuck tracker.
func (m *Manager) SetView(view *tokens.Tracker) {
	m.mu.Lock()
	m.view = view
	m.mu.Unlock()
}

func (m *Manager) tokenView() *tokens.Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// lockToken serialises operations per token. Distinct tokens proceed in
// parallel.
func (m *Manager) lockToken(token evm.Address) func() {
	v, _ := m.tokenLocks.LoadOrStore(token, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Wallet returns the trading account this manager signs for.
func (m *Manager) Wallet() evm.Address { return m.config.Wallet }

// LastSuccess returns the unix time of the last settled operation.
func (m *Manager) LastSuccess() time.Time { return time.Unix(m.lastSuccess.Load(), 0) }

// Buy swaps amountNative of the native token into token.
func (m *Manager) Buy(ctx context.Context, token evm.Address, amountNative decimal.Decimal, gasPriceGwei *decimal.Decimal) (*TradeResult, error) {
	unlock := m.lockToken(token)
	defer unlock()
	return m.buyLocked(ctx, token, amountNative, gasPriceGwei)
}

// buyLocked is Buy minus the per-token lock, for callers already holding
// it (the sandwich legs).
func (m *Manager) buyLocked(ctx context.Context, token evm.Address, amountNative decimal.Decimal, gasPriceGwei *decimal.Decimal) (*TradeResult, error) {
	if err := m.preflightBuy(ctx, token, amountNative); err != nil {
		return nil, err
	}

	key := m.idemKey(token, SideBuy, amountNative)
	if prior := m.priorResult(ctx, key); prior != nil {
		return prior, nil
	}

	path := []evm.Address{m.chain.WrappedNative, token}
	quote, err := m.adapter.AmountsOut(ctx, amountNative, path)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: quote buy %s", token)
	}
	expectedTokens := quote[len(quote)-1]
	minOut := m.applySlippage(expectedTokens, m.config.DefaultSlippagePct)

	req := evm.TxRequest{
		From:        m.config.Wallet,
		To:          m.chain.Router,
		ValueNative: amountNative,
		Input: evm.EncodeSwapNativeForTokens(
			decimalToRaw(minOut, 18), path, m.config.Wallet, deadline()),
	}
	if err := m.applyGas(ctx, &req, gasPriceGwei); err != nil {
		return nil, err
	}

	result, err := m.submitWithRetry(ctx, req, key)
	result.Token = token
	result.Side = SideBuy
	result.AmountNative = amountNative
	if err != nil {
		m.record(result)
		return result, err
	}

	result.TokensMoved = expectedTokens
	m.buys.Add(1)
	m.applyBuyFill(token, amountNative, expectedTokens)
	m.record(result)
	return result, nil
}

// Sell swaps percent of the held position back to native.
func (m *Manager) Sell(ctx context.Context, token evm.Address, percent decimal.Decimal, slippagePct decimal.Decimal, gasPriceGwei *decimal.Decimal) (*TradeResult, error) {
	unlock := m.lockToken(token)
	defer unlock()
	return m.sellLocked(ctx, token, percent, slippagePct, gasPriceGwei)
}

// sellLocked is Sell minus the per-token lock, for callers already
// holding it (the sandwich legs).
func (m *Manager) sellLocked(ctx context.Context, token evm.Address, percent, slippagePct decimal.Decimal, gasPriceGwei *decimal.Decimal) (*TradeResult, error) {
	if !evm.IsValidAddress(string(token)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: invalid token %q", token)
	}
	if !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: sell percent %s out of range", percent)
	}

	pos := m.Position(token)
	if pos == nil || !pos.Amount.IsPositive() {
		return nil, errs.New(errs.ConfigInvalid, "trade: no position in %s", token)
	}
	sellTokens := pos.Amount.Mul(percent).Div(decimal.NewFromInt(100))

	if slippagePct.IsZero() {
		slippagePct = m.config.DefaultSlippagePct
	}

	key := m.idemKey(token, SideSell, sellTokens)
	if prior := m.priorResult(ctx, key); prior != nil {
		return prior, nil
	}

	if err := m.ensureAllowance(ctx, token, sellTokens); err != nil {
		return nil, err
	}

	path := []evm.Address{token, m.chain.WrappedNative}
	quote, err := m.adapter.AmountsOut(ctx, sellTokens, path)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: quote sell %s", token)
	}
	expectedNative := quote[len(quote)-1]
	minOut := m.applySlippage(expectedNative, slippagePct)

	req := evm.TxRequest{
		From: m.config.Wallet,
		To:   m.chain.Router,
		Input: evm.EncodeSwapTokensForNative(
			decimalToRaw(sellTokens, 18), decimalToRaw(minOut, 18),
			path, m.config.Wallet, deadline()),
	}
	if err := m.applyGas(ctx, &req, gasPriceGwei); err != nil {
		return nil, err
	}

	result, err := m.submitWithRetry(ctx, req, key)
	result.Token = token
	result.Side = SideSell
	result.TokensMoved = sellTokens
	if err != nil {
		m.record(result)
		return result, err
	}

	result.AmountNative = expectedNative
	m.sells.Add(1)
	m.applySellFill(token, sellTokens, expectedNative)
	m.record(result)
	return result, nil
}

// preflightBuy validates the request, refuses Red tokens and enforces
// sizing and reserve limits.
func (m *Manager) preflightBuy(ctx context.Context, token evm.Address, amountNative decimal.Decimal) error {
	if !evm.IsValidAddress(string(token)) {
		return errs.New(errs.ConfigInvalid, "trade: invalid token %q", token)
	}
	if !amountNative.IsPositive() {
		return errs.New(errs.ConfigInvalid, "trade: non-positive amount %s", amountNative)
	}

	if view := m.tokenView(); view != nil {
		if status := view.Get(token); status != nil && status.Safety == tokens.SafetyRed {
			m.refusals.Add(1)
			return errs.New(errs.SafetyRefusal, "trade: %s is red, buys refused", token)
		}
	}

	balance, err := m.adapter.Balance(ctx, m.config.Wallet)
	if err != nil {
		return errs.Wrap(errs.KindOf(err), err, "trade: wallet balance")
	}
	hundred := decimal.NewFromInt(100)
	if sizeCap := balance.Mul(m.config.MaxPositionSizePct).Div(hundred); amountNative.GreaterThan(sizeCap) {
		return errs.New(errs.ConfigInvalid, "trade: amount %s exceeds position cap %s", amountNative, sizeCap)
	}
	reserve := balance.Mul(m.config.ReservePercent).Div(hundred)
	if balance.Sub(amountNative).LessThan(reserve) {
		return errs.New(errs.ReserveExhausted, "trade: amount %s would break the %s reserve", amountNative, reserve)
	}
	return nil
}

// ensureAllowance approves the router for the maximum amount when the
// current allowance cannot cover the sale, and waits for inclusion.
func (m *Manager) ensureAllowance(ctx context.Context, token evm.Address, needTokens decimal.Decimal) error {
	allowance, err := m.adapter.Allowance(ctx, token, m.config.Wallet, m.chain.Router)
	if err != nil {
		return errs.Wrap(errs.KindOf(err), err, "trade: allowance %s", token)
	}
	if allowance.GreaterThanOrEqual(needTokens) {
		return nil
	}

	maxUint := decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), -18)
	h, err := m.adapter.ApproveToken(ctx, token, m.chain.Router, maxUint)
	if err != nil {
		return errs.Wrap(errs.KindOf(err), err, "trade: approve %s", token)
	}
	log.Info().Str("token", string(token)).Str("tx", string(h)).Msg("trade: approval submitted")

	receipt, err := m.awaitReceipt(ctx, h)
	if err != nil {
		return err
	}
	if !receipt.Success {
		return errs.New(errs.ExecutionReverted, "trade: approval reverted: %s", receipt.RevertReason)
	}
	return nil
}

// applyGas sets the fee fields: an explicit override, or the optimizer's
// current recommendation. The estimate gets the configured headroom.
func (m *Manager) applyGas(ctx context.Context, req *evm.TxRequest, override *decimal.Decimal) error {
	estimate, err := m.adapter.EstimateGas(ctx, *req)
	if err != nil {
		return errs.Wrap(errs.KindOf(err), err, "trade: gas estimate")
	}
	req.GasLimit = estimate * uint64(100+m.config.GasHeadroomPct) / 100

	if override != nil && override.IsPositive() {
		req.GasPriceGwei = *override
		return nil
	}

	rec, err := m.gasOpt.Optimal(ctx)
	if err != nil {
		return errs.Wrap(errs.KindOf(err), err, "trade: gas recommendation")
	}
	if rec.EIP1559 {
		req.PriorityFeeGwei = rec.PriorityFeeGwei
		req.MaxFeeGwei = rec.MaxFeeGwei
	} else {
		req.GasPriceGwei = rec.GasPriceGwei
	}
	return nil
}

// submitWithRetry runs the submission pipeline: nonce, submit, await
// receipt, classify, adjust, retry. The returned TradeResult always has
// Attempts and GasPriceGwei filled in, error or not.
func (m *Manager) submitWithRetry(ctx context.Context, req evm.TxRequest, idemKey string) (*TradeResult, error) {
	result := &TradeResult{
		ID:             uuid.New().String()[:12],
		At:             time.Now(),
		idempotencyKey: idemKey,
	}

	var lastErr error
	needNonce := true
	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if needNonce {
			n, err := m.nonces.Next(ctx, req.From)
			if err != nil {
				return result, errs.Wrap(errs.KindOf(err), err, "trade: nonce")
			}
			req.Nonce = n
			needNonce = false
		}

		hash, err := m.adapter.SendTransaction(ctx, req)
		if err != nil {
			kind := errs.KindOf(err)
			lastErr = err
			if !errs.Retryable(kind) {
				result.ErrorMsg = err.Error()
				return result, err
			}
			req, needNonce = m.adjustForRetry(ctx, req, kind, attempt)
			continue
		}
		result.TxHash = hash
		result.GasPriceGwei = req.EffectiveGasGwei()

		receipt, err := m.awaitReceipt(ctx, hash)
		if err != nil {
			// Receipt deadline: retry with the same posture.
			lastErr = err
			if !errs.Is(err, errs.Timeout) {
				result.ErrorMsg = err.Error()
				return result, err
			}
			continue
		}
		if !receipt.Success {
			err := errs.New(errs.ExecutionReverted, "trade: reverted: %s", receipt.RevertReason)
			result.ErrorMsg = err.Error()
			return result, err
		}

		m.nonces.Update(req.From, req.Nonce)
		m.lastSuccess.Store(time.Now().Unix())
		result.Success = true
		return result, nil
	}

	result.ErrorMsg = fmt.Sprintf("gave up after %d attempts: %v", m.config.MaxAttempts, lastErr)
	return result, errs.Wrap(errs.KindOf(lastErr), lastErr, "trade: gave up after %d attempts", m.config.MaxAttempts)
}

// adjustForRetry applies the per-class retry adjustment. The second
// return reports whether the next attempt needs a fresh nonce.
func (m *Manager) adjustForRetry(ctx context.Context, req evm.TxRequest, kind errs.Kind, attempt int) (evm.TxRequest, bool) {
	fresh := false
	switch kind {
	case errs.Underpriced:
		req = bumpGas(req, decimal.NewFromFloat(1.1))
	case errs.ReplacementUnderpriced:
		_ = m.nonces.Reset(ctx, req.From)
		req = bumpGas(req, decimal.NewFromFloat(1.125))
		fresh = true
	case errs.NonceTooLow, errs.AlreadyKnown:
		_ = m.nonces.Reset(ctx, req.From)
		fresh = true
	default:
		// Linear backoff for transient unknowns.
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	if m.gasOpt != nil {
		capGwei := m.gasOpt.Cap()
		if capGwei.IsPositive() {
			if req.GasPriceGwei.GreaterThan(capGwei) {
				req.GasPriceGwei = capGwei
			}
			if req.MaxFeeGwei.GreaterThan(capGwei) {
				req.MaxFeeGwei = capGwei
			}
			if req.MaxFeeGwei.IsPositive() && req.PriorityFeeGwei.GreaterThan(req.MaxFeeGwei) {
				req.PriorityFeeGwei = req.MaxFeeGwei
			}
		}
	}
	return req, fresh
}

func bumpGas(req evm.TxRequest, factor decimal.Decimal) evm.TxRequest {
	if req.GasPriceGwei.IsPositive() {
		req.GasPriceGwei = req.GasPriceGwei.Mul(factor)
	} else {
		req.PriorityFeeGwei = req.PriorityFeeGwei.Mul(factor)
		req.MaxFeeGwei = req.MaxFeeGwei.Mul(factor)
	}
	return req
}

// awaitReceipt polls until the transaction mines or the deadline passes.
func (m *Manager) awaitReceipt(ctx context.Context, h evm.Hash) (*evm.Receipt, error) {
	deadline := time.Now().Add(m.config.ReceiptTimeout)
	for {
		receipt, err := m.adapter.TransactionReceipt(ctx, h)
		if err != nil {
			return nil, errs.Wrap(errs.KindOf(err), err, "trade: receipt %s", h)
		}
		if receipt != nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, errs.New(errs.Timeout, "trade: no receipt for %s within %s", h, m.config.ReceiptTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Timeout, ctx.Err(), "trade: receipt wait cancelled")
		case <-time.After(m.config.ReceiptPoll):
		}
	}
}

// ---------------------------------------------------------------------------
// Idempotency and history
// ---------------------------------------------------------------------------

// idemKey hashes the trade intent. Together with the nonce it guarantees
// at-most-one on-chain effect per intent.
func (m *Manager) idemKey(token evm.Address, side Side, amount decimal.Decimal) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", token, side, amount, m.config.Wallet)))
	return hex.EncodeToString(sum[:16])
}

// priorResult returns the result for key when its transaction is already
// confirmed, so a retry does not resubmit. The stored result may predate
// the receipt (a submission that gave up on the receipt deadline), so the
// receipt decides the Success flag, not the stored copy.
func (m *Manager) priorResult(ctx context.Context, key string) *TradeResult {
	m.mu.Lock()
	prior, ok := m.completed[key]
	m.mu.Unlock()
	if !ok || prior.TxHash == "" {
		return nil
	}
	receipt, err := m.adapter.TransactionReceipt(ctx, prior.TxHash)
	if err != nil || receipt == nil {
		return nil
	}
	log.Info().Str("tx", string(prior.TxHash)).Msg("trade: intent already confirmed, returning prior result")
	cp := prior
	cp.Success = receipt.Success
	if receipt.Success {
		cp.ErrorMsg = ""
	}
	return &cp
}

// record stores the result in history and the idempotency index. Any
// result that reached the chain is indexed, confirmed or not: a timed-out
// submission can still mine later, and the index is what stops a retry of
// the same intent from double-executing it.
func (m *Manager) record(result *TradeResult) {
	m.mu.Lock()
	if result.idempotencyKey != "" && result.TxHash != "" {
		m.completed[result.idempotencyKey] = *result
	}
	m.history = append(m.history, *result)
	if len(m.history) > 1000 {
		m.history = m.history[len(m.history)-1000:]
	}
	m.mu.Unlock()

	if m.state != nil {
		_ = m.state.Put(context.Background(), "history/"+result.ID, result)
	}
	if m.events != nil {
		m.events.Publish(bus.TopicTradeResult, bus.TradeResultEvent{
			Token:    result.Token,
			TxHash:   result.TxHash,
			Side:     string(result.Side),
			Success:  result.Success,
			ErrorMsg: result.ErrorMsg,
		})
	}
}

// History returns the most recent settled results, newest last.
func (m *Manager) History(limit int) []TradeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]TradeResult, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (m *Manager) applySlippage(amount, slippagePct decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(100).Sub(slippagePct)).Div(decimal.NewFromInt(100))
}

// decimalToRaw converts a whole-unit amount to the token's smallest unit.
func decimalToRaw(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

func deadline() uint64 {
	return uint64(time.Now().Add(20 * time.Minute).Unix())
}

// Stats is a snapshot of manager counters.
type Stats struct {
	Buys          int64 `json:"buys"`
	Sells         int64 `json:"sells"`
	Sandwiches    int64 `json:"sandwiches"`
	Refusals      int64 `json:"refusals"`
	OpenPositions int   `json:"open_positions"`
	OpenOrders    int   `json:"open_orders"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	for _, p := range m.positions {
		if p.Amount.IsPositive() {
			open++
		}
	}
	active := 0
	for _, o := range m.orders {
		if o.Status == OrderActive {
			active++
		}
	}
	return Stats{
		Buys:          m.buys.Load(),
		Sells:         m.sells.Load(),
		Sandwiches:    m.sandwiches.Load(),
		Refusals:      m.refusals.Load(),
		OpenPositions: open,
		OpenOrders:    active,
	}
}
