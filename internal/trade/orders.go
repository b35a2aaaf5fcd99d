package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// Resting orders — limits, trailing stops, DCA plans
// ---------------------------------------------------------------------------

// OrderType discriminates the resting order kinds.
type OrderType string

const (
	OrderLimit        OrderType = "limit"
	OrderTrailingStop OrderType = "trailing_stop"
	OrderDCA          OrderType = "dca"
)

// OrderStatus moves strictly forward: active orders settle exactly once.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
	OrderFailed    OrderStatus = "failed"
)

// Order is one resting instruction evaluated against price refreshes.
type Order struct {
	ID      string      `json:"id"`
	Type    OrderType   `json:"type"`
	Token   evm.Address `json:"token"`
	Side    Side        `json:"side"`
	Status  OrderStatus `json:"status"`
	Created time.Time   `json:"created"`
	Expiry  time.Time   `json:"expiry,omitempty"`

	// Limit: trigger price in native per token.
	TargetPrice decimal.Decimal `json:"target_price,omitempty"`
	// Percent of the position (sell) to move on trigger.
	Percent decimal.Decimal `json:"percent,omitempty"`

	// Trailing stop: TrailPct below the highest price seen.
	TrailPct decimal.Decimal `json:"trail_pct,omitempty"`
	Highest  decimal.Decimal `json:"highest,omitempty"`
	StopAt   decimal.Decimal `json:"stop_at,omitempty"`

	// DCA: ChildAmount native per buy, Remaining buys, next fire time.
	ChildAmount decimal.Decimal `json:"child_amount,omitempty"`
	Remaining   int             `json:"remaining,omitempty"`
	Interval    time.Duration   `json:"interval,omitempty"`
	NextFire    time.Time       `json:"next_fire,omitempty"`

	// Settlement details.
	FilledTx evm.Hash `json:"filled_tx,omitempty"`
	ErrorMsg string   `json:"error_msg,omitempty"`
}

// CreateLimitOrder rests an order that fires when the price crosses the
// target: sells at or above, buys at or below.
func (m *Manager) CreateLimitOrder(token evm.Address, side Side, targetPrice, percent decimal.Decimal, expiry time.Time) (*Order, error) {
	if !evm.IsValidAddress(string(token)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: invalid token %q", token)
	}
	if !targetPrice.IsPositive() {
		return nil, errs.New(errs.ConfigInvalid, "trade: non-positive target price")
	}
	if !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: percent %s out of range", percent)
	}
	o := &Order{
		ID:          uuid.New().String()[:12],
		Type:        OrderLimit,
		Token:       token,
		Side:        side,
		Status:      OrderActive,
		Created:     time.Now(),
		Expiry:      expiry,
		TargetPrice: targetPrice,
		Percent:     percent,
	}
	m.addOrder(o)
	return o, nil
}

// CreateTrailingStop rests a sell that follows the price up and fires
// when it falls trailPct from the high-water mark.
func (m *Manager) CreateTrailingStop(token evm.Address, trailPct, percent, currentPrice decimal.Decimal) (*Order, error) {
	if !evm.IsValidAddress(string(token)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: invalid token %q", token)
	}
	if !trailPct.IsPositive() || trailPct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: trail percent %s out of range", trailPct)
	}
	o := &Order{
		ID:       uuid.New().String()[:12],
		Type:     OrderTrailingStop,
		Token:    token,
		Side:     SideSell,
		Status:   OrderActive,
		Created:  time.Now(),
		TrailPct: trailPct,
		Percent:  percent,
		Highest:  currentPrice,
		StopAt:   stopFrom(currentPrice, trailPct),
	}
	m.addOrder(o)
	return o, nil
}

// CreateDCAPlan spreads a buy worth amountPct of the wallet balance over
// intervals evenly spaced buys inside window. The first child fires on
// the next evaluation tick.
func (m *Manager) CreateDCAPlan(ctx context.Context, token evm.Address, amountPct, intervals int, window time.Duration) (*Order, error) {
	if !evm.IsValidAddress(string(token)) {
		return nil, errs.New(errs.ConfigInvalid, "trade: invalid token %q", token)
	}
	if amountPct <= 0 || amountPct > 100 || intervals <= 0 {
		return nil, errs.New(errs.ConfigInvalid, "trade: bad dca parameters pct=%d intervals=%d", amountPct, intervals)
	}
	balance, err := m.adapter.Balance(ctx, m.config.Wallet)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "trade: wallet balance")
	}
	total := balance.Mul(decimal.NewFromInt(int64(amountPct))).Div(decimal.NewFromInt(100))
	o := &Order{
		ID:          uuid.New().String()[:12],
		Type:        OrderDCA,
		Token:       token,
		Side:        SideBuy,
		Status:      OrderActive,
		Created:     time.Now(),
		Expiry:      time.Now().Add(window),
		ChildAmount: total.Div(decimal.NewFromInt(int64(intervals))),
		Remaining:   intervals,
		Interval:    window / time.Duration(intervals),
		NextFire:    time.Now(),
	}
	m.addOrder(o)
	return o, nil
}

// CancelOrder cancels an active order. Settled orders cannot move.
func (m *Manager) CancelOrder(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errs.New(errs.ConfigInvalid, "trade: no order %s", id)
	}
	if o.Status != OrderActive {
		return errs.New(errs.ConfigInvalid, "trade: order %s already %s", id, o.Status)
	}
	o.Status = OrderCancelled
	m.persistOrderLocked(o)
	return nil
}

// Order returns a copy of the order, nil when unknown.
func (m *Manager) Order(id string) *Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp
	}
	return nil
}

// Orders returns copies of all resting orders.
func (m *Manager) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

func (m *Manager) addOrder(o *Order) {
	m.mu.Lock()
	m.orders[o.ID] = o
	m.persistOrderLocked(o)
	m.mu.Unlock()
	log.Info().
		Str("order", o.ID).
		Str("type", string(o.Type)).
		Str("token", string(o.Token)).
		Msg("trade: order created")
}

func (m *Manager) persistOrderLocked(o *Order) {
	if m.state == nil {
		return
	}
	if err := m.state.Put(context.Background(), "orders/"+o.ID, o); err != nil {
		log.Warn().Err(err).Str("order", o.ID).Msg("trade: persist order failed")
	}
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// EvaluateOrders walks every active order against the current price of
// its token. It is called from price refresh callbacks and from the bot
// cycle; priceOf returns the token price in native, zero when unknown.
func (m *Manager) EvaluateOrders(ctx context.Context, priceOf func(evm.Address) decimal.Decimal) {
	m.mu.Lock()
	due := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if o.Status == OrderActive {
			due = append(due, *o)
		}
	}
	m.mu.Unlock()

	now := time.Now()
	for i := range due {
		o := &due[i]
		if !o.Expiry.IsZero() && now.After(o.Expiry) {
			m.settleOrder(o.ID, OrderExpired, "", "")
			continue
		}
		price := priceOf(o.Token)

		switch o.Type {
		case OrderLimit:
			if price.IsZero() || !limitTriggered(o.Side, price, o.TargetPrice) {
				continue
			}
			m.fillOrder(ctx, o, price)

		case OrderTrailingStop:
			if price.IsZero() {
				continue
			}
			m.ratchetStop(o.ID, price)
			if price.LessThanOrEqual(m.stopLevel(o.ID)) {
				m.fillOrder(ctx, o, price)
			}

		case OrderDCA:
			if now.Before(o.NextFire) {
				continue
			}
			m.fireDCAChild(ctx, o)
		}
	}
}

// limitTriggered reports whether price crossed target in the order's
// favor: sells fire at or above, buys at or below.
func limitTriggered(side Side, price, target decimal.Decimal) bool {
	if side == SideSell {
		return price.GreaterThanOrEqual(target)
	}
	return price.LessThanOrEqual(target)
}

func stopFrom(high, trailPct decimal.Decimal) decimal.Decimal {
	return high.Mul(decimal.NewFromInt(100).Sub(trailPct)).Div(decimal.NewFromInt(100))
}

func (m *Manager) ratchetStop(id string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != OrderActive {
		return
	}
	if price.GreaterThan(o.Highest) {
		o.Highest = price
		o.StopAt = stopFrom(price, o.TrailPct)
		m.persistOrderLocked(o)
	}
}

func (m *Manager) stopLevel(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.StopAt
	}
	return decimal.Zero
}

// fillOrder executes the triggered limit or trailing stop.
func (m *Manager) fillOrder(ctx context.Context, o *Order, price decimal.Decimal) {
	var res *TradeResult
	var err error
	if o.Side == SideSell {
		res, err = m.Sell(ctx, o.Token, o.Percent, decimal.Zero, nil)
	} else {
		// Buy limits size against the wallet: Percent of balance.
		balance, berr := m.adapter.Balance(ctx, m.config.Wallet)
		if berr != nil {
			m.settleOrder(o.ID, OrderFailed, "", berr.Error())
			return
		}
		amount := balance.Mul(o.Percent).Div(decimal.NewFromInt(100))
		res, err = m.Buy(ctx, o.Token, amount, nil)
	}
	if err != nil {
		m.settleOrder(o.ID, OrderFailed, "", err.Error())
		return
	}
	log.Info().
		Str("order", o.ID).
		Str("price", price.String()).
		Str("tx", string(res.TxHash)).
		Msg("trade: order filled")
	m.settleOrder(o.ID, OrderFilled, res.TxHash, "")
}

// fireDCAChild executes one child buy and reschedules or completes the
// plan.
func (m *Manager) fireDCAChild(ctx context.Context, o *Order) {
	res, err := m.Buy(ctx, o.Token, o.ChildAmount, nil)
	if err != nil {
		m.settleOrder(o.ID, OrderFailed, "", err.Error())
		return
	}

	m.mu.Lock()
	live, ok := m.orders[o.ID]
	if ok && live.Status == OrderActive {
		live.Remaining--
		live.FilledTx = res.TxHash
		if live.Remaining <= 0 {
			live.Status = OrderFilled
		} else {
			live.NextFire = time.Now().Add(live.Interval)
		}
		m.persistOrderLocked(live)
	}
	m.mu.Unlock()
}

// settleOrder moves an active order to a terminal status.
func (m *Manager) settleOrder(id string, status OrderStatus, tx evm.Hash, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != OrderActive {
		return
	}
	o.Status = status
	o.FilledTx = tx
	o.ErrorMsg = errMsg
	m.persistOrderLocked(o)
}
