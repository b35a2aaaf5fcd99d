package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/strategy"
)

// ---------------------------------------------------------------------------
// MEV execution — sandwich, frontrun, profit decisions
// ---------------------------------------------------------------------------

// SandwichParams configures one sandwich attempt. Zero fields fall back
// to the manager config.
type SandwichParams struct {
	Token           evm.Address
	VictimTx        evm.Hash
	AmountPercent   int             // front size as % of the victim amount
	FrontMultiplier decimal.Decimal // over the victim gas price
	BackMultiplier  decimal.Decimal
	UsePrivateRelay bool
	VictimWait      time.Duration
}

// SandwichResult reports both legs. FrontTx and BackTx are always set
// once the front leg lands, whether the back leg was the planned exit or
// the emergency unwind.
type SandwichResult struct {
	Token         evm.Address     `json:"token"`
	VictimTx      evm.Hash        `json:"victim_tx"`
	FrontTx       evm.Hash        `json:"front_tx,omitempty"`
	BackTx        evm.Hash        `json:"back_tx,omitempty"`
	Success       bool            `json:"success"`
	EmergencyExit bool            `json:"emergency_exit"`
	ProfitNative  decimal.Decimal `json:"profit_native"`
	ProfitUSD     decimal.Decimal `json:"profit_usd"`
	At            time.Time       `json:"at"`
}

// ExecuteSandwich runs the full front-buy / victim-wait / back-sell
// sequence. The position opened by the front leg is closed on every
// path: the planned back leg when the victim confirms, the emergency
// unwind when it does not.
func (m *Manager) ExecuteSandwich(ctx context.Context, p SandwichParams) (*SandwichResult, error) {
	m.fillSandwichDefaults(&p)

	result := &SandwichResult{Token: p.Token, VictimTx: p.VictimTx, At: time.Now()}

	victim, err := m.adapter.TransactionByHash(ctx, p.VictimTx)
	if err != nil {
		return result, errs.Wrap(errs.KindOf(err), err, "trade: victim %s", p.VictimTx)
	}
	if victim == nil {
		return result, errs.New(errs.ConfigInvalid, "trade: victim %s not found", p.VictimTx)
	}

	frontAmount := victim.ValueNative.Mul(decimal.NewFromInt(int64(p.AmountPercent))).Div(decimal.NewFromInt(100))
	frontGas := victim.GasPrice.Mul(p.FrontMultiplier)
	backGas := victim.GasPrice.Mul(p.BackMultiplier)

	unlock := m.lockToken(p.Token)
	defer unlock()

	var front *TradeResult
	if p.UsePrivateRelay {
		if relay := evm.RelayFor(m.adapter); relay != nil {
			front, err = m.frontLegViaRelay(ctx, relay, p.Token, frontAmount, frontGas)
			if err != nil && relayDegradable(err) {
				log.Warn().Err(err).Str("chain", m.chain.Name).
					Msg("trade: relay rejected front bundle, degrading to public submission")
				front, err = m.buyLocked(ctx, p.Token, frontAmount, &frontGas)
			}
		} else {
			log.Warn().Str("chain", m.chain.Name).Msg("trade: no private relay, falling back to public mempool")
			front, err = m.buyLocked(ctx, p.Token, frontAmount, &frontGas)
		}
	} else {
		front, err = m.buyLocked(ctx, p.Token, frontAmount, &frontGas)
	}
	if front != nil {
		result.FrontTx = front.TxHash
	}
	if err != nil {
		return result, errs.Wrap(errs.KindOf(err), err, "trade: front leg")
	}

	log.Info().
		Str("token", string(p.Token)).
		Str("front", string(front.TxHash)).
		Str("front_gas", frontGas.String()).
		Msg("trade: front leg landed, waiting for victim")

	victimMined := m.awaitVictim(ctx, p.VictimTx, p.VictimWait)
	ordered := victimMined && m.frontRanFirst(ctx, front.TxHash, p.VictimTx)

	var back *TradeResult
	if ordered {
		back, err = m.sellLocked(ctx, p.Token, decimal.NewFromInt(100), m.config.DefaultSlippagePct, &backGas)
	} else {
		if victimMined {
			log.Warn().
				Str("token", string(p.Token)).
				Str("front", string(front.TxHash)).
				Msg("trade: front leg mined behind the victim, unwinding")
		}
		// No sandwich to close: unwind at wide slippage and hot gas so
		// the position does not sit exposed.
		emergencyGas := frontGas.Mul(m.config.EmergencyMultiplier)
		result.EmergencyExit = true
		back, err = m.sellLocked(ctx, p.Token, decimal.NewFromInt(100), m.config.EmergencySlippagePct, &emergencyGas)
	}
	if back != nil {
		result.BackTx = back.TxHash
	}
	if err != nil {
		return result, errs.Wrap(errs.KindOf(err), err, "trade: back leg")
	}

	result.Success = ordered && back.Success
	result.ProfitNative = back.AmountNative.Sub(front.AmountNative)
	if usd, perr := m.adapter.NativePriceUSD(ctx); perr == nil {
		result.ProfitUSD = result.ProfitNative.Mul(usd)
	}

	if result.Success {
		m.sandwiches.Add(1)
		m.noteSandwichProfit(p.Token, result.ProfitUSD)
	}
	log.Info().
		Str("token", string(p.Token)).
		Bool("success", result.Success).
		Bool("emergency", result.EmergencyExit).
		Str("profit_native", result.ProfitNative.String()).
		Msg("trade: sandwich settled")
	return result, nil
}

func (m *Manager) fillSandwichDefaults(p *SandwichParams) {
	if p.AmountPercent <= 0 {
		p.AmountPercent = m.config.AmountPercent
	}
	if !p.FrontMultiplier.IsPositive() {
		p.FrontMultiplier = m.config.FrontMultiplier
	}
	if !p.BackMultiplier.IsPositive() {
		p.BackMultiplier = m.config.BackMultiplier
	}
	if p.VictimWait <= 0 {
		p.VictimWait = m.config.VictimWait
	}
}

// frontLegViaRelay submits the front buy as a private bundle targeting the
// next block, bypassing the public gas auction. Position and history
// plumbing match buyLocked; the relay has no replacement mechanism, so one
// rejected bundle is one failed attempt and the caller decides whether to
// degrade to public submission.
func (m *Manager) frontLegViaRelay(ctx context.Context, relay evm.PrivateRelay, token evm.Address,
	amountNative decimal.Decimal, gasGwei decimal.Decimal) (*TradeResult, error) {

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
	if err := m.applyGas(ctx, &req, &gasGwei); err != nil {
		return nil, err
	}
	n, err := m.nonces.Next(ctx, req.From)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: nonce")
	}
	req.Nonce = n

	head, err := m.adapter.BlockNumber(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: head block")
	}
	target := head + 1

	bundle := []evm.TxRequest{req}
	if err := relay.SimulateBundle(ctx, bundle, target); err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: bundle simulation")
	}
	hash, err := relay.SendPrivateBundle(ctx, bundle, target)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: bundle submission")
	}

	result := &TradeResult{
		ID:             uuid.New().String()[:12],
		Token:          token,
		Side:           SideBuy,
		TxHash:         hash,
		AmountNative:   amountNative,
		GasPriceGwei:   req.EffectiveGasGwei(),
		Attempts:       1,
		At:             time.Now(),
		idempotencyKey: key,
	}
	log.Info().
		Str("token", string(token)).
		Str("bundle", string(hash)).
		Uint64("target_block", target).
		Msg("trade: front bundle submitted")

	receipt, err := m.awaitReceipt(ctx, hash)
	if err != nil {
		result.ErrorMsg = err.Error()
		m.record(result)
		return result, err
	}
	if !receipt.Success {
		err := errs.New(errs.ExecutionReverted, "trade: bundle reverted: %s", receipt.RevertReason)
		result.ErrorMsg = err.Error()
		m.record(result)
		return result, err
	}

	m.nonces.Update(req.From, req.Nonce)
	m.lastSuccess.Store(time.Now().Unix())
	result.Success = true
	result.TokensMoved = expectedTokens
	m.buys.Add(1)
	m.applyBuyFill(token, amountNative, expectedTokens)
	m.record(result)
	return result, nil
}

// relayDegradable reports whether a relay failure may be retried through
// the public mempool. Refusals, sizing errors, and reverts would fail
// there too.
func relayDegradable(err error) bool {
	switch errs.KindOf(err) {
	case errs.SafetyRefusal, errs.ConfigInvalid, errs.ReserveExhausted,
		errs.InsufficientFunds, errs.ExecutionReverted:
		return false
	default:
		return true
	}
}

// frontRanFirst reports whether the front leg was included ahead of the
// victim: an earlier block, or a lower index within the same block. A
// front leg behind the victim bought at the post-victim price and must be
// treated as a failed sandwich.
func (m *Manager) frontRanFirst(ctx context.Context, frontTx, victimTx evm.Hash) bool {
	fr, err := m.adapter.TransactionReceipt(ctx, frontTx)
	if err != nil || fr == nil {
		return false
	}
	vr, err := m.adapter.TransactionReceipt(ctx, victimTx)
	if err != nil || vr == nil {
		return false
	}
	if fr.BlockNumber != vr.BlockNumber {
		return fr.BlockNumber < vr.BlockNumber
	}
	return fr.TxIndex < vr.TxIndex
}

// awaitVictim polls for the victim receipt until the wait expires.
func (m *Manager) awaitVictim(ctx context.Context, h evm.Hash, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		receipt, err := m.adapter.TransactionReceipt(ctx, h)
		if err == nil && receipt != nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.config.ReceiptPoll):
		}
	}
}

func (m *Manager) noteSandwichProfit(token evm.Address, profitUSD decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[token]; ok {
		p.SandwichProfits = p.SandwichProfits.Add(profitUSD)
	}
}

// ---------------------------------------------------------------------------
// Frontrun
// ---------------------------------------------------------------------------

// FrontrunParams configures a single front-position buy ahead of a large
// pending transaction.
type FrontrunParams struct {
	Token         evm.Address
	TargetTx      evm.Hash
	AmountNative  decimal.Decimal
	GasMultiplier decimal.Decimal // over the target gas price
}

// ExecuteFrontrun buys ahead of the target transaction. It refuses
// targets below the configured USD floor. The position stays open; the
// caller decides the exit.
func (m *Manager) ExecuteFrontrun(ctx context.Context, p FrontrunParams) (*TradeResult, error) {
	target, err := m.adapter.TransactionByHash(ctx, p.TargetTx)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: target %s", p.TargetTx)
	}
	if target == nil {
		return nil, errs.New(errs.ConfigInvalid, "trade: target %s not found", p.TargetTx)
	}

	if usd, perr := m.adapter.NativePriceUSD(ctx); perr == nil {
		targetUSD := target.ValueNative.Mul(usd)
		if targetUSD.LessThan(m.config.MinFrontrunTargetUSD) {
			return nil, errs.New(errs.ConfigInvalid, "trade: target worth %s USD, floor is %s",
				targetUSD.Round(2), m.config.MinFrontrunTargetUSD)
		}
	}

	mult := p.GasMultiplier
	if !mult.IsPositive() {
		mult = m.config.FrontMultiplier
	}
	gasPrice := target.GasPrice.Mul(mult)
	if m.strat != nil {
		// Let the competitor model veto a lowball bid.
		if nash := m.strat.NashGasPrice(target.GasPrice, m.gasOpt.Congestion()); nash.GreaterThan(gasPrice) {
			gasPrice = nash
		}
	}

	return m.Buy(ctx, p.Token, p.AmountNative, &gasPrice)
}

// ---------------------------------------------------------------------------
// Profit decisions
// ---------------------------------------------------------------------------

// DecisionOutcome reports how a profit alternative was put into effect.
type DecisionOutcome struct {
	Kind    strategy.DecisionKind `json:"kind"`
	OrderID string                `json:"order_id,omitempty"`
	Trade   *TradeResult          `json:"trade,omitempty"`
}

// ExecuteProfitDecision enacts the chosen alternative: an immediate exit
// trades now, the rest become resting orders or plans.
func (m *Manager) ExecuteProfitDecision(ctx context.Context, token evm.Address, alt strategy.ProfitAlternative) (*DecisionOutcome, error) {
	out := &DecisionOutcome{Kind: alt.Kind}
	switch alt.Kind {
	case strategy.DecisionTakeProfitNow:
		res, err := m.Sell(ctx, token, decimal.NewFromInt(100), decimal.Zero, nil)
		out.Trade = res
		return out, err

	case strategy.DecisionHoldForTarget:
		o, err := m.CreateLimitOrder(token, SideSell, alt.TargetPrice, decimal.NewFromInt(100), alt.Deadline)
		if err != nil {
			return nil, err
		}
		out.OrderID = o.ID
		return out, nil

	case strategy.DecisionContinueSandwich:
		m.EnableAutoSandwich(token, alt.MaxBuys)
		return out, nil

	case strategy.DecisionDCABuy:
		o, err := m.CreateDCAPlan(ctx, token, alt.AmountPct, alt.Intervals, alt.Window)
		if err != nil {
			return nil, err
		}
		out.OrderID = o.ID
		return out, nil

	default:
		return nil, errs.New(errs.ConfigInvalid, "trade: unknown decision %q", alt.Kind)
	}
}

// ---------------------------------------------------------------------------
// Auto-sandwich
// ---------------------------------------------------------------------------

// EnableAutoSandwich arms up to maxBuys sandwich attempts on token,
// consumed as opportunities surface in the mempool.
func (m *Manager) EnableAutoSandwich(token evm.Address, maxBuys int) {
	if maxBuys <= 0 {
		maxBuys = 3
	}
	m.mu.Lock()
	m.autoSandwich[token] = maxBuys
	m.mu.Unlock()
	log.Info().Str("token", string(token)).Int("max_buys", maxBuys).Msg("trade: auto-sandwich armed")
}

// DisableAutoSandwich disarms the token.
func (m *Manager) DisableAutoSandwich(token evm.Address) {
	m.mu.Lock()
	delete(m.autoSandwich, token)
	m.mu.Unlock()
}

// AutoSandwichTick consumes one opportunity per armed token, if the
// mempool has one. The bot calls this every cycle.
func (m *Manager) AutoSandwichTick(ctx context.Context) {
	if m.pool == nil {
		return
	}
	m.mu.Lock()
	armed := make(map[evm.Address]int, len(m.autoSandwich))
	for t, n := range m.autoSandwich {
		armed[t] = n
	}
	m.mu.Unlock()

	for token, remaining := range armed {
		opp := m.pool.BestSandwich(token)
		if opp == nil {
			continue
		}
		res, err := m.ExecuteSandwich(ctx, SandwichParams{Token: token, VictimTx: opp.Victim.TxHash})
		if err != nil {
			log.Warn().Err(err).Str("token", string(token)).Msg("trade: auto-sandwich attempt failed")
		}

		m.mu.Lock()
		if res != nil && res.Success && remaining > 1 {
			m.autoSandwich[token] = remaining - 1
		} else {
			delete(m.autoSandwich, token)
		}
		m.mu.Unlock()
	}
}
