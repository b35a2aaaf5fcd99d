package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Router ABI — swap-family calldata decoding
// ---------------------------------------------------------------------------

// Swap-family selectors (first four calldata bytes, hex, no 0x prefix).
const (
	SelSwapExactETHForTokens        = "7ff36ab5"
	SelSwapExactETHForTokensFee     = "b6f9de95" // SupportingFeeOnTransferTokens
	SelSwapExactTokensForETH        = "18cbafe5"
	SelSwapExactTokensForETHFee     = "791ac947" // SupportingFeeOnTransferTokens
	SelSwapExactTokensForTokens     = "38ed1739"
	SelSwapExactTokensForTokensFee  = "5c11d795" // SupportingFeeOnTransferTokens
	SelSwapExactAVAXForTokens       = "a2a1623d" // Trader Joe alias
	SelSwapExactTokensForAVAX       = "676528d1" // Trader Joe alias
)

// SwapMethod describes the argument layout of one router swap function.
type SwapMethod struct {
	Name        string
	NativeInput bool // true when the input asset is the chain's native token
	// Word index of the amountIn argument; -1 for native-input swaps where
	// the amount rides in tx.value.
	AmountInWord int
	// Word index of the path array's offset word.
	PathOffsetWord int
}

// SwapFamily maps selector hex to its method layout. This is the set of
// functions the mempool tracker decodes; everything else on the router is
// ignored.
var SwapFamily = map[string]SwapMethod{
	SelSwapExactETHForTokens:       {Name: "swapExactETHForTokens", NativeInput: true, AmountInWord: -1, PathOffsetWord: 1},
	SelSwapExactETHForTokensFee:    {Name: "swapExactETHForTokensSupportingFeeOnTransferTokens", NativeInput: true, AmountInWord: -1, PathOffsetWord: 1},
	SelSwapExactAVAXForTokens:      {Name: "swapExactAVAXForTokens", NativeInput: true, AmountInWord: -1, PathOffsetWord: 1},
	SelSwapExactTokensForETH:       {Name: "swapExactTokensForETH", NativeInput: false, AmountInWord: 0, PathOffsetWord: 2},
	SelSwapExactTokensForETHFee:    {Name: "swapExactTokensForETHSupportingFeeOnTransferTokens", NativeInput: false, AmountInWord: 0, PathOffsetWord: 2},
	SelSwapExactTokensForAVAX:      {Name: "swapExactTokensForAVAX", NativeInput: false, AmountInWord: 0, PathOffsetWord: 2},
	SelSwapExactTokensForTokens:    {Name: "swapExactTokensForTokens", NativeInput: false, AmountInWord: 0, PathOffsetWord: 2},
	SelSwapExactTokensForTokensFee: {Name: "swapExactTokensForTokensSupportingFeeOnTransferTokens", NativeInput: false, AmountInWord: 0, PathOffsetWord: 2},
}

// SwapCall is a decoded router swap invocation.
type SwapCall struct {
	Selector    string          `json:"selector"`
	Method      string          `json:"method"`
	NativeInput bool            `json:"native_input"`
	// AmountInRaw is the input amount in the token's smallest unit. Zero for
	// native-input swaps (the amount is the transaction value).
	AmountInRaw decimal.Decimal `json:"amount_in_raw"`
	Path        []Address       `json:"path"`
}

// Selector returns the hex selector of calldata, or "" when the input is too
// short to carry one.
func Selector(input []byte) string {
	if len(input) < 4 {
		return ""
	}
	return hex.EncodeToString(input[:4])
}

// IsSwapSelector reports whether the calldata targets a router swap function.
func IsSwapSelector(input []byte) bool {
	_, ok := SwapFamily[Selector(input)]
	return ok
}

// DecodeSwapCall decodes swap-family calldata. Returns an error for unknown
// selectors or malformed argument encoding.
func DecodeSwapCall(input []byte) (*SwapCall, error) {
	sel := Selector(input)
	method, ok := SwapFamily[sel]
	if !ok {
		return nil, fmt.Errorf("selector %q is not in the swap family", sel)
	}

	args := input[4:]

	call := &SwapCall{
		Selector:    sel,
		Method:      method.Name,
		NativeInput: method.NativeInput,
		AmountInRaw: decimal.Zero,
	}

	if method.AmountInWord >= 0 {
		amount, err := wordBig(args, method.AmountInWord)
		if err != nil {
			return nil, fmt.Errorf("decode amountIn: %w", err)
		}
		call.AmountInRaw = decimal.NewFromBigInt(amount, 0)
	}

	offset, err := wordUint64(args, method.PathOffsetWord)
	if err != nil {
		return nil, fmt.Errorf("decode path offset: %w", err)
	}
	path, err := decodeAddressArray(args, int(offset))
	if err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("swap path has %d hops, need at least 2", len(path))
	}
	call.Path = path

	return call, nil
}

// TargetToken scans a swap path for the traded token: the first hop that is
// not the wrapped-native address. Returns the zero address for pure
// native/wrapped paths.
func TargetToken(path []Address, wrappedNative Address) Address {
	for _, hop := range path {
		if hop != wrappedNative && !hop.IsZero() {
			return hop
		}
	}
	return ""
}

// --- ABI word helpers ---

func wordAt(args []byte, i int) ([]byte, error) {
	start := i * 32
	if start < 0 || start+32 > len(args) {
		return nil, fmt.Errorf("calldata too short for word %d", i)
	}
	return args[start : start+32], nil
}

func wordUint64(args []byte, i int) (uint64, error) {
	w, err := wordAt(args, i)
	if err != nil {
		return 0, err
	}
	v := new(big.Int).SetBytes(w)
	if !v.IsUint64() {
		return 0, fmt.Errorf("word %d does not fit uint64", i)
	}
	return v.Uint64(), nil
}

func wordBig(args []byte, i int) (*big.Int, error) {
	w, err := wordAt(args, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func wordAddress(args []byte, i int) (Address, error) {
	w, err := wordAt(args, i)
	if err != nil {
		return "", err
	}
	return Address("0x" + hex.EncodeToString(w[12:])), nil
}

// decodeAddressArray decodes a dynamic address[] whose data begins at byte
// offset within args (the offset word points at the length word).
func decodeAddressArray(args []byte, offset int) ([]Address, error) {
	if offset%32 != 0 {
		return nil, fmt.Errorf("misaligned array offset %d", offset)
	}
	lenWord := offset / 32
	n, err := wordUint64(args, lenWord)
	if err != nil {
		return nil, err
	}
	if n > 8 {
		return nil, fmt.Errorf("path length %d exceeds sane bound", n)
	}
	out := make([]Address, 0, n)
	for i := 0; i < int(n); i++ {
		addr, err := wordAddress(args, lenWord+1+i)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Calldata encoding (the small subset the trade manager submits)
// ---------------------------------------------------------------------------

// EncodeSwapNativeForTokens builds calldata for
// swapExactETHForTokens(amountOutMin, path, to, deadline).
func EncodeSwapNativeForTokens(amountOutMin *big.Int, path []Address, to Address, deadline uint64) []byte {
	return encodeSwap(SelSwapExactETHForTokens, nil, amountOutMin, path, to, deadline)
}

// EncodeSwapTokensForNative builds calldata for
// swapExactTokensForETH(amountIn, amountOutMin, path, to, deadline).
func EncodeSwapTokensForNative(amountIn, amountOutMin *big.Int, path []Address, to Address, deadline uint64) []byte {
	return encodeSwap(SelSwapExactTokensForETH, amountIn, amountOutMin, path, to, deadline)
}

func encodeSwap(selector string, amountIn, amountOutMin *big.Int, path []Address, to Address, deadline uint64) []byte {
	sel, _ := hex.DecodeString(selector)

	head := make([]*big.Int, 0, 5)
	if amountIn != nil {
		head = append(head, amountIn)
	}
	head = append(head, amountOutMin)
	pathOffsetIdx := len(head) // filled below
	head = append(head, nil)   // placeholder for path offset
	head = append(head, addressBig(to))
	head = append(head, new(big.Int).SetUint64(deadline))

	head[pathOffsetIdx] = big.NewInt(int64(len(head) * 32))

	buf := make([]byte, 0, 4+len(head)*32+(1+len(path))*32)
	buf = append(buf, sel...)
	for _, w := range head {
		buf = append(buf, bigWord(w)...)
	}
	buf = append(buf, bigWord(big.NewInt(int64(len(path))))...)
	for _, hop := range path {
		buf = append(buf, bigWord(addressBig(hop))...)
	}
	return buf
}

func addressBig(a Address) *big.Int {
	if !IsValidAddress(string(a)) {
		return big.NewInt(0)
	}
	raw, err := hex.DecodeString(string(a[2:]))
	if err != nil {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(raw)
}

func bigWord(v *big.Int) []byte {
	w := make([]byte, 32)
	v.FillBytes(w)
	return w
}
