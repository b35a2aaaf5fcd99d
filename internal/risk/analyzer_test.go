package risk

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
)

const (
	tok  = evm.Address("0x1111111111111111111111111111111111111111")
	pair = evm.Address("0x4444444444444444444444444444444444444444")
)

func testSetup(t *testing.T) (*Analyzer, *evm.StubAdapter) {
	t.Helper()
	reg := evm.PredefinedRegistry()
	chain, err := reg.Chain("ethereum")
	require.NoError(t, err)

	stub := evm.NewStubAdapter(chain)
	stub.AddToken(evm.TokenInfo{
		Address:  tok,
		Symbol:   "MEME",
		Decimals: 18,
		Verified: true,
	})
	stub.SetSwapRate(tok, decimal.NewFromInt(1000))
	stub.SetPair(tok, chain.WrappedNative, pair)
	stub.SetTokenBalance(pair, "0x000000000000000000000000000000000000dead", decimal.NewFromInt(1))
	stub.AddHolders(tok, []evm.HolderInfo{
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Percentage: 5},
		{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Percentage: 3},
	})
	return NewAnalyzer(DefaultConfig(), chain, stub, nil), stub
}

func TestAnalyze_CleanToken(t *testing.T) {
	a, _ := testSetup(t)

	analysis, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)

	assert.False(t, analysis.IsHoneypot)
	assert.True(t, analysis.IsVerified)
	assert.True(t, analysis.LiquidityLocked)
	assert.Empty(t, analysis.DangerousFunctions)
	assert.Equal(t, 0, analysis.Score)
}

func TestAnalyze_HoneypotBySellTax(t *testing.T) {
	a, stub := testSetup(t)
	stub.SetSellTax(tok, decimal.NewFromFloat(0.9))

	analysis, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)

	assert.True(t, analysis.IsHoneypot)
	assert.InDelta(t, 90, analysis.Tax.SellTaxPct.InexactFloat64(), 0.1)
	assert.GreaterOrEqual(t, analysis.Score, weightHoneypot)
}

func TestAnalyze_ModerateSellTaxIsNotHoneypot(t *testing.T) {
	a, stub := testSetup(t)
	stub.SetSellTax(tok, decimal.NewFromFloat(0.15))

	analysis, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)

	assert.False(t, analysis.IsHoneypot)
	assert.InDelta(t, 15, analysis.Tax.SellTaxPct.InexactFloat64(), 0.1)
	assert.Equal(t, weightTaxHigh, analysis.Score)
}

func TestAnalyze_UnverifiedWithOwnerBackdoors(t *testing.T) {
	a, stub := testSetup(t)
	stub.AddToken(evm.TokenInfo{
		Address:   tok,
		Symbol:    "MEME",
		Decimals:  18,
		Verified:  false,
		Selectors: []string{"40c10f19", "f9f92be4", "70a08231"},
	})

	analysis, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"mint", "blacklist"}, analysis.DangerousFunctions)
	assert.Equal(t, weightUnverified+2*weightDangerousFn, analysis.Score)
}

func TestAnalyze_HolderConcentration(t *testing.T) {
	a, stub := testSetup(t)
	stub.AddHolders(tok, []evm.HolderInfo{
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Percentage: 55},
		{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Percentage: 30},
	})

	analysis, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)

	assert.Equal(t, 55.0, analysis.TopHolderPct)
	assert.Equal(t, 85.0, analysis.Top10Pct)
	assert.Equal(t, weightTop1Majority+weightTop10Dominant, analysis.Score)
}

func TestAnalyze_CachedResultSurvivesChainOutage(t *testing.T) {
	reg := evm.PredefinedRegistry()
	chain, err := reg.Chain("ethereum")
	require.NoError(t, err)

	stub := evm.NewStubAdapter(chain)
	stub.AddToken(evm.TokenInfo{Address: tok, Symbol: "MEME", Decimals: 18, Verified: true})
	stub.SetSwapRate(tok, decimal.NewFromInt(1000))

	store := cache.NewLocal(cache.LocalConfig{Capacity: 16})
	a := NewAnalyzer(DefaultConfig(), chain, stub, store)

	first, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)

	stub.FailNext("TokenInfo", errs.ChainUnavailable)
	second, err := a.Analyze(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.WithinDuration(t, first.AnalyzedAt, second.AnalyzedAt, time.Second)
}

func TestAnalyze_InvalidAddress(t *testing.T) {
	a, _ := testSetup(t)
	_, err := a.Analyze(context.Background(), "not-an-address")
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}
