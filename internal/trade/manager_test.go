package trade

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-trading/hornet/internal/cache"
	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/gas"
	"github.com/hornet-trading/hornet/internal/nonce"
	"github.com/hornet-trading/hornet/internal/risk"
	"github.com/hornet-trading/hornet/internal/store"
	"github.com/hornet-trading/hornet/internal/tokens"
)

const (
	wallet = evm.Address("0x00000000000000000000000000000000000000aa")
	meme   = evm.Address("0x1111111111111111111111111111111111111111")
	whale  = evm.Address("0x2222222222222222222222222222222222222222")
	lpPair = evm.Address("0x3333333333333333333333333333333333333333")
)

type rig struct {
	stub *evm.StubAdapter
	mgr  *Manager
	view *tokens.Tracker
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cfg, err := evm.PredefinedRegistry().Chain("ethereum")
	require.NoError(t, err)

	stub := evm.NewStubAdapter(cfg)
	stub.SetBalance(wallet, decimal.NewFromInt(100))
	stub.SetSwapRate(meme, decimal.NewFromInt(1000))
	stub.SetGasPrice(decimal.NewFromInt(50))
	stub.SetBaseFee(decimal.NewFromInt(30))
	stub.SetAutoMine(true)

	tc := DefaultConfig()
	tc.Wallet = wallet
	tc.MaxPositionSizePct = decimal.NewFromInt(50)
	tc.ReceiptTimeout = 500 * time.Millisecond
	tc.ReceiptPoll = 5 * time.Millisecond
	tc.VictimWait = 150 * time.Millisecond

	nm := nonce.NewManager(nonce.DefaultConfig(), stub)
	gasOpt := gas.NewOptimizer(gas.Config{}, stub)

	return &rig{
		stub: stub,
		mgr:  NewManager(tc, stub, nm, gasOpt, nil, nil, nil, nil, store.NewMem()),
	}
}

// newRigWithView adds a token tracker wired to a real risk analyzer so
// safety gating is exercised end to end.
func newRigWithView(t *testing.T) *rig {
	t.Helper()
	r := newRig(t)
	cfg := r.stub.Chain()

	r.stub.SetPair(meme, cfg.WrappedNative, lpPair)
	r.stub.SetTokenBalance(cfg.WrappedNative, lpPair, decimal.NewFromInt(50))

	analyzer := risk.NewAnalyzer(risk.DefaultConfig(), cfg, r.stub,
		cache.NewLocal(cache.LocalConfig{Capacity: 100}))
	r.view = tokens.NewTracker(tokens.DefaultConfig(), cfg, r.stub, analyzer, nil, nil)
	r.mgr.view = r.view
	return r
}

// ----- Buy / Sell -----

func TestBuy_OpensPosition(t *testing.T) {
	r := newRig(t)

	res, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, "1000", res.TokensMoved.String())

	pos := r.mgr.Position(meme)
	require.NotNil(t, pos)
	assert.Equal(t, "1000", pos.Amount.String())
	assert.Equal(t, "1", pos.CostNative.String())
	assert.Equal(t, "0.001", pos.AvgCost().String())
}

func TestSell_ExistingAllowanceSkipsApproval(t *testing.T) {
	r := newRig(t)
	router := r.stub.Chain().Router
	r.stub.SetAllowance(meme, wallet, router, decimal.New(1, 30))

	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	res, err := r.mgr.Sell(context.Background(), meme, decimal.NewFromInt(50), decimal.Zero, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "500", res.TokensMoved.String())
	assert.Equal(t, "0.5", res.AmountNative.String())

	pos := r.mgr.Position(meme)
	assert.Equal(t, "500", pos.Amount.String())
	assert.True(t, pos.RealizedNative.IsZero(), "flat price means flat PnL, got %s", pos.RealizedNative)
}

func TestSell_MissingAllowanceApprovesFirst(t *testing.T) {
	r := newRig(t)

	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	// Allowance is zero; the sale must still settle after an approval.
	res, err := r.mgr.Sell(context.Background(), meme, decimal.NewFromInt(100), decimal.Zero, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, r.mgr.Position(meme).Amount.IsZero())
}

func TestSell_NoPosition(t *testing.T) {
	r := newRig(t)
	_, err := r.mgr.Sell(context.Background(), meme, decimal.NewFromInt(100), decimal.Zero, nil)
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}

// ----- Pre-flight -----

func TestBuy_RedTokenRefused(t *testing.T) {
	r := newRigWithView(t)
	r.stub.AddToken(evm.TokenInfo{
		Address:     meme,
		Symbol:      "RUG",
		Decimals:    18,
		TotalSupply: decimal.NewFromInt(1_000_000),
		Verified:    false,
		Selectors:   []string{"40c10f19"},
	})
	require.NoError(t, r.view.Add(context.Background(), meme))
	require.Equal(t, tokens.SafetyRed, r.view.Get(meme).Safety)

	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.SafetyRefusal))
	assert.Empty(t, r.stub.SentTransactions(), "no transaction may reach the chain")
	assert.Equal(t, int64(1), r.mgr.Stats().Refusals)
}

func TestBuy_PositionSizeCap(t *testing.T) {
	r := newRig(t)
	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(60), nil)
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}

func TestBuy_ReserveProtected(t *testing.T) {
	r := newRig(t)
	r.mgr.config.MaxPositionSizePct = decimal.NewFromInt(95)

	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(92), nil)
	assert.True(t, errs.Is(err, errs.ReserveExhausted))
}

func TestBuy_InvalidAddress(t *testing.T) {
	r := newRig(t)
	_, err := r.mgr.Buy(context.Background(), "0xnothex", decimal.NewFromInt(1), nil)
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}

// ----- Retry pipeline -----

func TestBuy_UnderpricedRetriesWithGasBump(t *testing.T) {
	r := newRig(t)
	r.stub.FailNext("SendTransaction", errs.Underpriced)
	r.stub.FailNext("SendTransaction", errs.Underpriced)

	gasOverride := decimal.NewFromInt(50)
	res, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), &gasOverride)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	// 50 * 1.1 * 1.1
	assert.Equal(t, "60.5", res.GasPriceGwei.String())
	sent := r.stub.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, "60.5", sent[0].GasPriceGwei.String())
}

func TestBuy_RevertFailsFast(t *testing.T) {
	r := newRig(t)
	r.stub.FailNext("SendTransaction", errs.InsufficientFunds)

	res, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InsufficientFunds))
	assert.Equal(t, 1, res.Attempts)
	assert.Nil(t, r.mgr.Position(meme))
}

func TestBuy_GivesUpAfterMaxAttempts(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 3; i++ {
		r.stub.FailNext("SendTransaction", errs.Underpriced)
	}

	res, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.Error(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Success)
}

func TestBuy_RetryKeepsMaxFeeUnderCap(t *testing.T) {
	r := newRig(t)
	r.mgr.gasOpt = gas.NewOptimizer(gas.Config{GasCapGwei: decimal.NewFromInt(65)}, r.stub)
	r.stub.FailNext("SendTransaction", errs.Underpriced)
	r.stub.FailNext("SendTransaction", errs.Underpriced)

	res, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)

	sent := r.stub.SentTransactions()
	require.Len(t, sent, 1)
	// Base fee 30 puts the first posture at maxFee 62; two bumps would
	// reach 75.02 uncapped.
	assert.Equal(t, "65", sent[0].MaxFeeGwei.String())
	assert.True(t, sent[0].PriorityFeeGwei.LessThanOrEqual(sent[0].MaxFeeGwei))
}

func TestBuy_SameIntentNotResubmitted(t *testing.T) {
	r := newRig(t)

	first, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	second, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	assert.Equal(t, first.TxHash, second.TxHash)
	assert.Len(t, r.stub.SentTransactions(), 1, "confirmed intent must not resubmit")
}

func TestBuy_TimedOutIntentNotResubmittedAfterLateConfirm(t *testing.T) {
	r := newRig(t)
	r.stub.SetAutoMine(false)
	r.mgr.config.ReceiptTimeout = 20 * time.Millisecond

	first, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Timeout))
	require.NotEmpty(t, first.TxHash)
	submitted := len(r.stub.SentTransactions())

	// The last submission mines after the deadline passed.
	r.stub.AddReceipt(evm.Receipt{TxHash: first.TxHash, BlockNumber: 7, Success: true})

	second, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.TxHash, second.TxHash)
	assert.Len(t, r.stub.SentTransactions(), submitted, "late-confirmed intent must not resubmit")
}

// ----- History -----

func TestHistory_RecordsNewestLast(t *testing.T) {
	r := newRig(t)

	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	_, err = r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(2), nil)
	require.NoError(t, err)

	h := r.mgr.History(10)
	require.Len(t, h, 2)
	assert.Equal(t, "1", h[0].AmountNative.String())
	assert.Equal(t, "2", h[1].AmountNative.String())
}

// ----- Persistence -----

func TestPositions_SurviveRestart(t *testing.T) {
	r := newRig(t)
	state := r.mgr.state

	_, err := r.mgr.Buy(context.Background(), meme, decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	reborn := NewManager(r.mgr.config, r.stub, r.mgr.nonces, r.mgr.gasOpt,
		nil, nil, nil, nil, state)
	pos := reborn.Position(meme)
	require.NotNil(t, pos)
	assert.Equal(t, "1000", pos.Amount.String())
}
