package evm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weth  = Address("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	tokenA = Address("0x1111111111111111111111111111111111111111")
	trader = Address("0x2222222222222222222222222222222222222222")
)

func TestDecodeSwapCall_NativeForTokens(t *testing.T) {
	input := EncodeSwapNativeForTokens(big.NewInt(0), []Address{weth, tokenA}, trader, 1_700_000_000)

	call, err := DecodeSwapCall(input)
	require.NoError(t, err)

	assert.Equal(t, SelSwapExactETHForTokens, call.Selector)
	assert.True(t, call.NativeInput)
	assert.True(t, call.AmountInRaw.IsZero())
	require.Len(t, call.Path, 2)
	assert.Equal(t, weth, call.Path[0])
	assert.Equal(t, tokenA, call.Path[1])
}

func TestDecodeSwapCall_TokensForNative(t *testing.T) {
	amountIn := new(big.Int).SetUint64(5_000_000_000_000_000_000) // 5e18
	input := EncodeSwapTokensForNative(amountIn, big.NewInt(0), []Address{tokenA, weth}, trader, 1_700_000_000)

	call, err := DecodeSwapCall(input)
	require.NoError(t, err)

	assert.Equal(t, SelSwapExactTokensForETH, call.Selector)
	assert.False(t, call.NativeInput)
	assert.Equal(t, "5000000000000000000", call.AmountInRaw.String())
	require.Len(t, call.Path, 2)
	assert.Equal(t, tokenA, call.Path[0])
}

func TestDecodeSwapCall_RejectsUnknownSelector(t *testing.T) {
	_, err := DecodeSwapCall([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestDecodeSwapCall_RejectsTruncatedCalldata(t *testing.T) {
	input := EncodeSwapNativeForTokens(big.NewInt(0), []Address{weth, tokenA}, trader, 0)
	_, err := DecodeSwapCall(input[:40])
	assert.Error(t, err)
}

func TestTargetToken(t *testing.T) {
	tests := []struct {
		name string
		path []Address
		want Address
	}{
		{"buy path", []Address{weth, tokenA}, tokenA},
		{"sell path", []Address{tokenA, weth}, tokenA},
		{"multi hop", []Address{weth, tokenA, trader}, tokenA},
		{"wrapped only", []Address{weth, weth}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetToken(tt.path, weth))
		})
	}
}

func TestIsSwapSelector(t *testing.T) {
	buy := EncodeSwapNativeForTokens(big.NewInt(0), []Address{weth, tokenA}, trader, 0)
	assert.True(t, IsSwapSelector(buy))
	assert.False(t, IsSwapSelector([]byte{0x01, 0x02, 0x03, 0x04}))
	assert.False(t, IsSwapSelector([]byte{0x01}))
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"))
	assert.True(t, IsValidAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	assert.False(t, IsValidAddress("c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"))
	assert.False(t, IsValidAddress("0x1234"))
	assert.False(t, IsValidAddress("0xzzzaaa39b223fe8d0a0e5c4f27ead9083c756cc2"))
}
