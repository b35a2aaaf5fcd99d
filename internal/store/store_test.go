package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMem_PutGetRoundTrip(t *testing.T) {
	s := NewMem()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "positions/0xabc", record{Name: "MEME", Count: 2}))

	var out record
	ok, err := s.Get(ctx, "positions/0xabc", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "MEME", Count: 2}, out)
}

func TestMem_MissingKey(t *testing.T) {
	s := NewMem()
	var out record
	ok, err := s.Get(context.Background(), "nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMem_VersionsBumpPerWrite(t *testing.T) {
	s := NewMem()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", record{Count: 1}))
	require.NoError(t, s.Put(ctx, "k", record{Count: 2}))

	assert.Equal(t, int64(2), s.Version("k"))

	var out record
	_, err := s.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
}

func TestMem_KeysByPrefix(t *testing.T) {
	s := NewMem()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "orders/1", record{}))
	require.NoError(t, s.Put(ctx, "orders/2", record{}))
	require.NoError(t, s.Put(ctx, "positions/1", record{}))

	keys, err := s.Keys(ctx, "orders/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders/1", "orders/2"}, keys)
}

func TestMem_Delete(t *testing.T) {
	s := NewMem()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", record{}))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"), "double delete is a no-op")

	var out record
	ok, _ := s.Get(ctx, "k", &out)
	assert.False(t, ok)
}
