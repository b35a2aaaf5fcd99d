package gas

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-trading/hornet/internal/evm"
)

func newTestOptimizer(eip1559 bool) (*Optimizer, *evm.StubAdapter) {
	stub := evm.NewStubAdapter(evm.ChainConfig{
		Name:               "test",
		EIP1559:            eip1559,
		MaxPriorityFeeGwei: decimal.NewFromInt(2),
	})
	return NewOptimizer(DefaultConfig(), stub), stub
}

func TestRefresh_BuildsWindowAndCongestion(t *testing.T) {
	opt, stub := newTestOptimizer(false)
	ctx := context.Background()

	// Flat prices: low congestion.
	stub.SetGasPrice(decimal.NewFromInt(30))
	for i := 0; i < 10; i++ {
		require.NoError(t, opt.Refresh(ctx))
	}
	assert.Equal(t, CongestionLow, opt.Congestion())

	// A sharp climb relabels upward.
	for i := 1; i <= 10; i++ {
		stub.SetGasPrice(decimal.NewFromInt(int64(30 + i*5)))
		require.NoError(t, opt.Refresh(ctx))
	}
	assert.Equal(t, CongestionVeryHigh, opt.Congestion())
}

func TestOptimal_Legacy_CappedByHardLimit(t *testing.T) {
	opt, stub := newTestOptimizer(false)
	opt.config.GasCapGwei = decimal.NewFromInt(40)
	stub.SetGasPrice(decimal.NewFromInt(100))

	rec, err := opt.Optimal(context.Background())
	require.NoError(t, err)
	assert.False(t, rec.EIP1559)
	assert.True(t, rec.GasPriceGwei.LessThanOrEqual(decimal.NewFromInt(40)),
		"got %s", rec.GasPriceGwei)
}

func TestOptimal_EIP1559(t *testing.T) {
	opt, stub := newTestOptimizer(true)
	stub.SetGasPrice(decimal.NewFromInt(30))
	stub.SetBaseFee(decimal.NewFromInt(25))

	rec, err := opt.Optimal(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.EIP1559)
	assert.True(t, rec.PriorityFeeGwei.IsPositive())
	// max fee = 2*base + priority
	assert.True(t, rec.MaxFeeGwei.GreaterThanOrEqual(decimal.NewFromInt(50)))
}

func TestRetryGasPrice_EscalationLadder(t *testing.T) {
	opt, _ := newTestOptimizer(false)
	base := decimal.NewFromInt(100)

	assert.Equal(t, "100", opt.RetryGasPrice(0, base).String())
	assert.Equal(t, "110", opt.RetryGasPrice(1, base).String())
	assert.Equal(t, "125", opt.RetryGasPrice(2, base).String())
	assert.Equal(t, "150", opt.RetryGasPrice(3, base).String())

	// Hard cap wins over the ladder.
	opt.config.GasCapGwei = decimal.NewFromInt(120)
	assert.Equal(t, "120", opt.RetryGasPrice(3, base).String())
}

func TestRetryGasLimit(t *testing.T) {
	opt, _ := newTestOptimizer(false)
	assert.Equal(t, uint64(500_000), opt.RetryGasLimit(500_000, 0))
	assert.Equal(t, uint64(550_000), opt.RetryGasLimit(500_000, 1))
	assert.Equal(t, uint64(600_000), opt.RetryGasLimit(500_000, 2))
	assert.Equal(t, uint64(650_000), opt.RetryGasLimit(500_000, 3))
}

func TestTrend(t *testing.T) {
	opt, _ := newTestOptimizer(false)

	for _, p := range []int64{30, 31, 33, 36, 40} {
		opt.Observe(decimal.NewFromInt(p))
	}
	pct, label := opt.Trend()
	assert.Equal(t, "rising", label)
	assert.InDelta(t, 33.3, pct, 0.5)
}

func TestPercentile(t *testing.T) {
	opt, _ := newTestOptimizer(false)
	for _, p := range []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		opt.Observe(decimal.NewFromInt(p))
	}
	assert.Equal(t, "50", opt.Percentile(0.5).String())
	assert.Equal(t, "90", opt.Percentile(0.9).String())
}
