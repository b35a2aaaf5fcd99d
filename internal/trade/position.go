package trade

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/strategy"
)

// ---------------------------------------------------------------------------
// Position book
// ---------------------------------------------------------------------------

// Position is the running state of one token holding. Amounts are in
// whole token units, costs and proceeds in native units.
type Position struct {
	Token           evm.Address     `json:"token"`
	Amount          decimal.Decimal `json:"amount"`
	CostNative      decimal.Decimal `json:"cost_native"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	RealizedNative  decimal.Decimal `json:"realized_native"`
	OpenedAt        time.Time       `json:"opened_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	SandwichProfits decimal.Decimal `json:"sandwich_profits_usd"`
}

// AvgCost returns the average entry price in native per token.
func (p *Position) AvgCost() decimal.Decimal {
	if !p.Amount.IsPositive() {
		return decimal.Zero
	}
	return p.CostNative.Div(p.Amount)
}

// UnrealizedNative values the holding at price and subtracts the cost.
func (p *Position) UnrealizedNative(price decimal.Decimal) decimal.Decimal {
	return p.Amount.Mul(price).Sub(p.CostNative)
}

// Position returns a copy of the current position, nil when none.
func (m *Manager) Position(token evm.Address) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[token]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Positions returns copies of every open position.
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Amount.IsPositive() {
			out = append(out, *p)
		}
	}
	return out
}

// applyBuyFill folds a confirmed buy into the position.
func (m *Manager) applyBuyFill(token evm.Address, spentNative, tokensReceived decimal.Decimal) {
	m.mu.Lock()
	p, ok := m.positions[token]
	if !ok {
		p = &Position{Token: token, OpenedAt: time.Now()}
		m.positions[token] = p
	}
	p.Amount = p.Amount.Add(tokensReceived)
	p.CostNative = p.CostNative.Add(spentNative)
	p.EntryPrice = p.AvgCost()
	p.UpdatedAt = time.Now()
	cp := *p
	m.mu.Unlock()

	m.persistPosition(cp)
}

// applySellFill folds a confirmed sell into the position. Selling down to
// zero closes it; the record stays for PnL history.
func (m *Manager) applySellFill(token evm.Address, soldTokens, proceedsNative decimal.Decimal) {
	m.mu.Lock()
	p, ok := m.positions[token]
	if !ok {
		m.mu.Unlock()
		return
	}
	costShare := decimal.Zero
	if p.Amount.IsPositive() {
		costShare = p.CostNative.Mul(soldTokens).Div(p.Amount)
	}
	p.Amount = p.Amount.Sub(soldTokens)
	p.CostNative = p.CostNative.Sub(costShare)
	p.RealizedNative = p.RealizedNative.Add(proceedsNative.Sub(costShare))
	if !p.Amount.IsPositive() {
		p.Amount = decimal.Zero
		p.CostNative = decimal.Zero
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.mu.Unlock()

	m.persistPosition(cp)
}

func (m *Manager) persistPosition(p Position) {
	if m.state == nil {
		return
	}
	if err := m.state.Put(context.Background(), "positions/"+string(p.Token), p); err != nil {
		log.Warn().Err(err).Str("token", string(p.Token)).Msg("trade: persist position failed")
	}
}

// restore reloads positions and orders from the state store on startup.
func (m *Manager) restore() {
	if m.state == nil {
		return
	}
	ctx := context.Background()

	keys, err := m.state.Keys(ctx, "positions/")
	if err != nil {
		log.Warn().Err(err).Msg("trade: restore positions failed")
		return
	}
	for _, k := range keys {
		var p Position
		if ok, err := m.state.Get(ctx, k, &p); err == nil && ok && p.Amount.IsPositive() {
			m.positions[p.Token] = &p
		}
	}

	orderKeys, err := m.state.Keys(ctx, "orders/")
	if err != nil {
		return
	}
	for _, k := range orderKeys {
		var o Order
		if ok, err := m.state.Get(ctx, k, &o); err == nil && ok && o.Status == OrderActive {
			m.orders[o.ID] = &o
		}
	}
	if len(m.positions) > 0 || len(m.orders) > 0 {
		log.Info().Int("positions", len(m.positions)).Int("orders", len(m.orders)).Msg("trade: state restored")
	}
}

// PositionView converts a position to the strategy layer's view, valued
// at the given price and native/USD rate.
func (m *Manager) PositionView(token evm.Address, price, nativeUSD decimal.Decimal) *strategy.PositionView {
	p := m.Position(token)
	if p == nil || !p.Amount.IsPositive() {
		return nil
	}
	return &strategy.PositionView{
		Token:             token,
		ValueUSD:          p.Amount.Mul(price).Mul(nativeUSD),
		UnrealizedPnLUSD:  p.UnrealizedNative(price).Mul(nativeUSD),
		CurrentPrice:      price,
		HeldFor:           time.Since(p.OpenedAt),
		SandwichProfitUSD: p.SandwichProfits,
	}
}
