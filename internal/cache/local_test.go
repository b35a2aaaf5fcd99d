package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(capacity int) *Local {
	return NewLocal(LocalConfig{Capacity: capacity}) // no janitor
}

func TestLocal_SetGet(t *testing.T) {
	c := newTestCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	raw, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), raw)
}

func TestLocal_ExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_WriterCannotShortenActiveLease(t *testing.T) {
	c := newTestCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Hour))
	require.NoError(t, c.Set(ctx, "k", []byte("v2"), time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	// The hour-long lease survives; the value is the latest write.
	raw, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), raw)
}

func TestLocal_LRUEviction(t *testing.T) {
	c := newTestCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
	}

	// Touch k0 so k1 becomes the LRU victim.
	_, _, _ = c.Get(ctx, "k0")
	require.NoError(t, c.Set(ctx, "k3", []byte("v"), time.Minute))

	_, ok, _ := c.Get(ctx, "k1")
	assert.False(t, ok, "k1 should have been evicted")
	_, ok, _ = c.Get(ctx, "k0")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestLocal_JSONRoundTrip(t *testing.T) {
	c := newTestCache(10)
	ctx := context.Background()

	type payload struct {
		Token string `json:"token"`
		Score int    `json:"score"`
	}
	require.NoError(t, SetJSON(ctx, c, "p", payload{Token: "0xabc", Score: 42}, time.Minute))

	var out payload
	ok, err := GetJSON(ctx, c, "p", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xabc", out.Token)
	assert.Equal(t, 42, out.Score)
}

func TestLocal_Sweep(t *testing.T) {
	c := newTestCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stale", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "fresh", []byte("v"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	c.sweep()
	assert.Equal(t, 1, c.Len())
}
