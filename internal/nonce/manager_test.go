package nonce

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
)

const addr = evm.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func newTestManager(t *testing.T) (*Manager, *evm.StubAdapter) {
	t.Helper()
	stub := evm.NewStubAdapter(evm.ChainConfig{Name: "test", ChainID: 1})
	return NewManager(DefaultConfig(), stub), stub
}

func TestNext_StrictlyIncreasing(t *testing.T) {
	mgr, stub := newTestManager(t)
	stub.SetNonce(addr, 7)

	ctx := context.Background()
	var prev uint64
	for i := 0; i < 10; i++ {
		n, err := mgr.Next(ctx, addr)
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, n, prev)
		}
		prev = n
	}
	assert.Equal(t, uint64(16), prev)
}

func TestNext_TakesMaxOfChainAndLocal(t *testing.T) {
	mgr, stub := newTestManager(t)
	mgr.config.RefetchTTL = time.Nanosecond // force a refetch every call
	stub.SetNonce(addr, 5)

	ctx := context.Background()
	n, err := mgr.Next(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	// Chain reports a lower nonce than the local counter; local must win.
	stub.SetNonce(addr, 2)
	time.Sleep(time.Millisecond)
	n2, err := mgr.Next(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n2)
}

func TestReset_RebasesFromChain(t *testing.T) {
	mgr, stub := newTestManager(t)
	stub.SetNonce(addr, 0)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := mgr.Next(ctx, addr)
		require.NoError(t, err)
	}

	stub.SetNonce(addr, 3)
	require.NoError(t, mgr.Reset(ctx, addr))

	n, err := mgr.Next(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestUpdate_AdvancesOnObservation(t *testing.T) {
	mgr, stub := newTestManager(t)
	stub.SetNonce(addr, 0)

	ctx := context.Background()
	_, err := mgr.Next(ctx, addr)
	require.NoError(t, err)

	mgr.Update(addr, 10)
	n, err := mgr.Next(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)

	// A lower observation must not rewind the counter.
	mgr.Update(addr, 4)
	n2, err := mgr.Next(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n2)
}

// gatedAdapter stalls TransactionCount for one address until released.
type gatedAdapter struct {
	*evm.StubAdapter
	stalled  evm.Address
	inFlight chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (g *gatedAdapter) TransactionCount(ctx context.Context, a evm.Address) (uint64, error) {
	if a == g.stalled {
		g.once.Do(func() { close(g.inFlight) })
		<-g.release
	}
	return g.StubAdapter.TransactionCount(ctx, a)
}

func TestNext_SlowRefetchDoesNotBlockOtherAddresses(t *testing.T) {
	const slow = evm.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	gate := &gatedAdapter{
		StubAdapter: evm.NewStubAdapter(evm.ChainConfig{Name: "test", ChainID: 1}),
		stalled:     slow,
		inFlight:    make(chan struct{}),
		release:     make(chan struct{}),
	}
	mgr := NewManager(DefaultConfig(), gate)
	ctx := context.Background()

	// Prime addr so its record is fresh.
	n, err := mgr.Next(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	slowDone := make(chan uint64, 1)
	go func() {
		if sn, serr := mgr.Next(ctx, slow); serr == nil {
			slowDone <- sn
		}
	}()
	<-gate.inFlight // the slow fetch is in flight against the node

	fast := make(chan uint64, 1)
	go func() {
		if fn, ferr := mgr.Next(ctx, addr); ferr == nil {
			fast <- fn
		}
	}()
	select {
	case fn := <-fast:
		assert.Equal(t, uint64(1), fn)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("fresh-record issuance stalled behind a slow refetch")
	}

	close(gate.release)
	select {
	case sn := <-slowDone:
		assert.Equal(t, uint64(0), sn)
	case <-time.After(time.Second):
		t.Fatal("stalled refetch never completed")
	}
}

func TestNext_ConcurrentRefetchesStayUnique(t *testing.T) {
	mgr, stub := newTestManager(t)
	mgr.config.RefetchTTL = time.Nanosecond // every call races through a refetch
	stub.SetNonce(addr, 3)

	ctx := context.Background()
	const workers = 16
	out := make(chan uint64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			n, err := mgr.Next(ctx, addr)
			if assert.NoError(t, err) {
				out <- n
			}
		}()
	}
	wg.Wait()
	close(out)

	got := make([]uint64, 0, workers)
	for n := range out {
		got = append(got, n)
	}
	require.Len(t, got, workers)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i], "concurrent refetches must never reissue a nonce")
	}
	assert.Equal(t, uint64(3), got[0])
}

func TestNext_ChainUnavailable(t *testing.T) {
	mgr, stub := newTestManager(t)
	stub.FailNext("TransactionCount", errs.ChainUnavailable)

	_, err := mgr.Next(context.Background(), addr)
	require.Error(t, err)
	assert.Equal(t, errs.ChainUnavailable, errs.KindOf(err))
}
