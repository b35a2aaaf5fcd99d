package trade

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-trading/hornet/internal/evm"
)

func fixedPrice(p string) func(evm.Address) decimal.Decimal {
	price := decimal.RequireFromString(p)
	return func(evm.Address) decimal.Decimal { return price }
}

func TestLimitSell_FiresAtTarget(t *testing.T) {
	r := newRig(t)
	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	o, err := r.mgr.CreateLimitOrder(meme, SideSell, decimal.RequireFromString("0.002"),
		decimal.NewFromInt(100), time.Now().Add(time.Hour))
	require.NoError(t, err)

	// Below target: nothing happens.
	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.0015"))
	assert.Equal(t, OrderActive, r.mgr.Order(o.ID).Status)

	// At target: the position is sold out.
	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.002"))
	settled := r.mgr.Order(o.ID)
	assert.Equal(t, OrderFilled, settled.Status)
	assert.NotEmpty(t, settled.FilledTx)
	assert.True(t, r.mgr.Position(meme).Amount.IsZero())
}

func TestLimitOrder_Expires(t *testing.T) {
	r := newRig(t)
	o, err := r.mgr.CreateLimitOrder(meme, SideSell, decimal.RequireFromString("0.002"),
		decimal.NewFromInt(100), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.003"))
	assert.Equal(t, OrderExpired, r.mgr.Order(o.ID).Status)
	assert.Empty(t, r.stub.SentTransactions())
}

func TestLimitOrder_CancelIsTerminal(t *testing.T) {
	r := newRig(t)
	o, err := r.mgr.CreateLimitOrder(meme, SideSell, decimal.RequireFromString("0.002"),
		decimal.NewFromInt(100), time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, r.mgr.CancelOrder(o.ID))
	assert.Error(t, r.mgr.CancelOrder(o.ID), "settled orders cannot move")

	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.003"))
	assert.Equal(t, OrderCancelled, r.mgr.Order(o.ID).Status)
}

func TestTrailingStop_RatchetsAndFires(t *testing.T) {
	r := newRig(t)
	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	o, err := r.mgr.CreateTrailingStop(meme, decimal.NewFromInt(10),
		decimal.NewFromInt(100), decimal.RequireFromString("0.001"))
	require.NoError(t, err)
	assert.Equal(t, "0.0009", r.mgr.Order(o.ID).StopAt.String())

	// Price rises: the stop follows.
	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.002"))
	assert.Equal(t, OrderActive, r.mgr.Order(o.ID).Status)
	assert.Equal(t, "0.0018", r.mgr.Order(o.ID).StopAt.String())

	// Price falls through the ratcheted stop: sell.
	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.0017"))
	assert.Equal(t, OrderFilled, r.mgr.Order(o.ID).Status)
	assert.True(t, r.mgr.Position(meme).Amount.IsZero())
}

func TestDCAPlan_BuysInSteps(t *testing.T) {
	r := newRig(t)
	o, err := r.mgr.CreateDCAPlan(context.Background(), meme, 10, 5, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "2", o.ChildAmount.String())

	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.001"))

	live := r.mgr.Order(o.ID)
	assert.Equal(t, OrderActive, live.Status)
	assert.Equal(t, 4, live.Remaining)
	assert.True(t, live.NextFire.After(time.Now()), "next child waits for the interval")

	pos := r.mgr.Position(meme)
	require.NotNil(t, pos)
	assert.Equal(t, "2000", pos.Amount.String())

	// Next tick is too early for the second child.
	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.001"))
	assert.Equal(t, 4, r.mgr.Order(o.ID).Remaining)
}

func TestDCAPlan_CompletesAfterLastChild(t *testing.T) {
	r := newRig(t)
	o, err := r.mgr.CreateDCAPlan(context.Background(), meme, 2, 1, time.Hour)
	require.NoError(t, err)

	r.mgr.EvaluateOrders(context.Background(), fixedPrice("0.001"))
	assert.Equal(t, OrderFilled, r.mgr.Order(o.ID).Status)
}

func TestEnableAutoSandwich_ConsumesOpportunities(t *testing.T) {
	r := newRig(t)
	r.mgr.EnableAutoSandwich(meme, 2)
	assert.Equal(t, 2, r.mgr.autoSandwich[meme])

	r.mgr.DisableAutoSandwich(meme)
	_, armed := r.mgr.autoSandwich[meme]
	assert.False(t, armed)
}
