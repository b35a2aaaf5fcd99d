package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hornet-trading/hornet/internal/evm"
)

const tok = evm.Address("0x1111111111111111111111111111111111111111")

// scriptedPredictor returns canned decisions and counts invocations.
type scriptedPredictor struct {
	decision Decision
	err      error
	delay    time.Duration
	calls    int
}

func (p *scriptedPredictor) Predict(ctx context.Context, _ Features) (Decision, error) {
	p.calls++
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return p.decision, p.err
}

func newTestCoordinator(p Predictor) *Coordinator {
	cfg := DefaultConfig()
	cfg.AutoTradeEnabled = true
	cfg.PredictTimeout = 50 * time.Millisecond
	return NewCoordinator(cfg, p, nil, nil, nil)
}

func TestDecide_CachesWithinTTL(t *testing.T) {
	p := &scriptedPredictor{decision: Decision{Action: ActionBuy, Confidence: 0.9}}
	c := newTestCoordinator(p)

	first := c.Decide(context.Background(), tok)
	second := c.Decide(context.Background(), tok)

	assert.Equal(t, 1, p.calls, "second call must come from cache")
	assert.Equal(t, first.At, second.At)
	assert.Equal(t, int64(1), c.Stats().CacheHits)
}

func TestDecide_InvalidateForcesRepredict(t *testing.T) {
	p := &scriptedPredictor{decision: Decision{Action: ActionBuy, Confidence: 0.9}}
	c := newTestCoordinator(p)

	c.Decide(context.Background(), tok)
	c.Invalidate(tok)
	c.Decide(context.Background(), tok)

	assert.Equal(t, 2, p.calls)
}

func TestDecide_SlowPredictorYieldsMonitor(t *testing.T) {
	p := &scriptedPredictor{
		decision: Decision{Action: ActionBuy, Confidence: 0.99},
		delay:    200 * time.Millisecond,
	}
	c := newTestCoordinator(p)

	d := c.Decide(context.Background(), tok)

	assert.Equal(t, ActionMonitor, d.Action)
	assert.Zero(t, d.Confidence)
	assert.Equal(t, int64(1), c.Stats().Timeouts)
}

func TestShouldAutoTrade(t *testing.T) {
	c := newTestCoordinator(&scriptedPredictor{})

	assert.True(t, c.ShouldAutoTrade(Decision{Action: ActionBuy, Confidence: 0.8}))
	assert.True(t, c.ShouldAutoTrade(Decision{Action: ActionSandwich, Confidence: 0.75}))
	assert.False(t, c.ShouldAutoTrade(Decision{Action: ActionBuy, Confidence: 0.74}))
	assert.False(t, c.ShouldAutoTrade(Decision{Action: ActionMonitor, Confidence: 0.99}))
	assert.False(t, c.ShouldAutoTrade(Decision{Action: ActionAvoid, Confidence: 0.99}))

	c.config.AutoTradeEnabled = false
	assert.False(t, c.ShouldAutoTrade(Decision{Action: ActionBuy, Confidence: 0.99}))
}

func TestHeuristicPredictor(t *testing.T) {
	p := HeuristicPredictor{}

	d, err := p.Predict(context.Background(), Features{Safety: "red"})
	require.NoError(t, err)
	assert.Equal(t, ActionAvoid, d.Action)

	d, _ = p.Predict(context.Background(), Features{Safety: "green", BuyPressure: 9, SellPressure: 1})
	assert.Equal(t, ActionBuy, d.Action)

	d, _ = p.Predict(context.Background(), Features{Safety: "green", LargeBuys: 2})
	assert.Equal(t, ActionSandwich, d.Action)

	d, _ = p.Predict(context.Background(), Features{Safety: "yellow"})
	assert.Equal(t, ActionMonitor, d.Action)
}
