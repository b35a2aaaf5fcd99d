package tokens

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/risk"
)

const (
	memeTok  = evm.Address("0x1111111111111111111111111111111111111111")
	memePair = evm.Address("0x4444444444444444444444444444444444444444")
)

func testChain(t *testing.T) evm.ChainConfig {
	t.Helper()
	chain, err := evm.PredefinedRegistry().Chain("ethereum")
	require.NoError(t, err)
	return chain
}

// seedToken wires a healthy, tradable token into the stub.
func seedToken(stub *evm.StubAdapter, chain evm.ChainConfig, token, pair evm.Address) {
	stub.AddToken(evm.TokenInfo{Address: token, Symbol: "MEME", Decimals: 18, Verified: true})
	stub.SetSwapRate(token, decimal.NewFromInt(1000))
	stub.SetPair(token, chain.WrappedNative, pair)
	stub.SetTokenBalance(chain.WrappedNative, pair, decimal.NewFromInt(50))
	stub.SetTokenBalance(pair, "0x000000000000000000000000000000000000dead", decimal.NewFromInt(1))
	stub.SetNativePriceUSD(decimal.NewFromInt(2000))
}

func newTestTracker(t *testing.T) (*Tracker, *evm.StubAdapter) {
	t.Helper()
	chain := testChain(t)
	stub := evm.NewStubAdapter(chain)
	seedToken(stub, chain, memeTok, memePair)
	analyzer := risk.NewAnalyzer(risk.DefaultConfig(), chain, stub, nil)
	return NewTracker(DefaultConfig(), chain, stub, analyzer, nil, nil), stub
}

func TestAddAndGet(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.Add(context.Background(), memeTok))

	status := tr.Get(memeTok)
	require.NotNil(t, status)
	assert.Equal(t, "MEME", status.Symbol)
	assert.Equal(t, SafetyGreen, status.Safety)
	assert.Equal(t, "0.001", status.PriceNative.String())
	assert.Equal(t, "2", status.PriceUSD.String())
	assert.Equal(t, "50", status.LiquidityNative.String())
}

func TestAdd_InvalidAddress(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.Add(context.Background(), "bogus")
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}

func TestClassify_OrderedRules(t *testing.T) {
	cfg := DefaultConfig()
	healthy := func() (*TokenStatus, *risk.TokenRiskAnalysis) {
		return &TokenStatus{LiquidityNative: decimal.NewFromInt(50)},
			&risk.TokenRiskAnalysis{IsVerified: true, LiquidityLocked: true}
	}

	t.Run("green", func(t *testing.T) {
		s, r := healthy()
		assert.Equal(t, SafetyGreen, Classify(cfg, s, r))
	})

	t.Run("unverified is red", func(t *testing.T) {
		s, r := healthy()
		r.IsVerified = false
		assert.Equal(t, SafetyRed, Classify(cfg, s, r))
	})

	t.Run("dangerous function is red", func(t *testing.T) {
		s, r := healthy()
		r.DangerousFunctions = []string{"mint"}
		assert.Equal(t, SafetyRed, Classify(cfg, s, r))
	})

	t.Run("sell tax above 20 is red", func(t *testing.T) {
		s, r := healthy()
		r.Tax.SellTaxPct = decimal.NewFromInt(21)
		assert.Equal(t, SafetyRed, Classify(cfg, s, r))
	})

	t.Run("score 75 is red, 74 is yellow", func(t *testing.T) {
		s, r := healthy()
		r.Score = 75
		assert.Equal(t, SafetyRed, Classify(cfg, s, r))
		r.Score = 74
		assert.Equal(t, SafetyYellow, Classify(cfg, s, r))
	})

	t.Run("score 35 is yellow, 34 is green", func(t *testing.T) {
		s, r := healthy()
		r.Score = 35
		assert.Equal(t, SafetyYellow, Classify(cfg, s, r))
		r.Score = 34
		assert.Equal(t, SafetyGreen, Classify(cfg, s, r))
	})

	t.Run("thin liquidity is red", func(t *testing.T) {
		s, r := healthy()
		s.LiquidityNative = decimal.NewFromFloat(0.5)
		assert.Equal(t, SafetyRed, Classify(cfg, s, r))
	})

	t.Run("caution liquidity is yellow", func(t *testing.T) {
		s, r := healthy()
		s.LiquidityNative = decimal.NewFromInt(3)
		assert.Equal(t, SafetyYellow, Classify(cfg, s, r))
	})

	t.Run("moderate tax is yellow", func(t *testing.T) {
		s, r := healthy()
		r.Tax.BuyTaxPct = decimal.NewFromInt(12)
		assert.Equal(t, SafetyYellow, Classify(cfg, s, r))
	})
}

func TestCapacityEviction(t *testing.T) {
	chain := testChain(t)
	stub := evm.NewStubAdapter(chain)
	cfg := DefaultConfig()
	cfg.Capacity = 3
	tr := NewTracker(cfg, chain, stub, nil, nil, nil)

	addrs := make([]evm.Address, 5)
	for i := range addrs {
		addrs[i] = evm.Address(fmt.Sprintf("0x%040d", i))
		seedToken(stub, chain, addrs[i], memePair)
		require.NoError(t, tr.Add(context.Background(), addrs[i]))
	}

	assert.Equal(t, 3, tr.Len())
	assert.Nil(t, tr.Get(addrs[0]), "oldest entries evicted")
	assert.Nil(t, tr.Get(addrs[1]))
	assert.NotNil(t, tr.Get(addrs[4]))
}

func TestRefreshFailureCountsButDoesNotEvict(t *testing.T) {
	tr, stub := newTestTracker(t)
	require.NoError(t, tr.Add(context.Background(), memeTok))

	stub.FailNext("TokenInfo", errs.ChainUnavailable)
	alerts := tr.UpdateAll(context.Background())
	assert.Empty(t, alerts)

	status := tr.Get(memeTok)
	require.NotNil(t, status)
	assert.Equal(t, 1, status.ConsecutiveFailures)

	// The next clean pass resets the counter.
	tr.UpdateAll(context.Background())
	assert.Equal(t, 0, tr.Get(memeTok).ConsecutiveFailures)
}

func TestPriceAlertOnThresholdMove(t *testing.T) {
	tr, stub := newTestTracker(t)
	require.NoError(t, tr.Add(context.Background(), memeTok))

	var seen []PriceAlert
	tr.OnPriceAlert(func(alert PriceAlert) { seen = append(seen, alert) })

	// Rate 1000 -> 900 tokens per native: price rises ~11%.
	stub.SetSwapRate(memeTok, decimal.NewFromInt(900))
	alerts := tr.UpdateAll(context.Background())

	require.Len(t, alerts, 1)
	require.Len(t, seen, 1)
	assert.Equal(t, memeTok, seen[0].Token)
	assert.True(t, seen[0].ChangePct.GreaterThan(decimal.NewFromInt(10)))

	// A <5% move stays quiet.
	stub.SetSwapRate(memeTok, decimal.NewFromInt(890))
	assert.Empty(t, tr.UpdateAll(context.Background()))
}
