package evm

import (
	"context"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// ChainAdapter capability
// ---------------------------------------------------------------------------

// ChainAdapter is the uniform capability set for one EVM network.
// Implementations: LiveAdapter (JSON-RPC + websocket), StubAdapter (testing).
// Chain variety (swap selectors, wrapped-native address, EIP-1559 support) is
// configuration, not subtyping.
type ChainAdapter interface {
	// Chain returns the static configuration of the network this adapter serves.
	Chain() ChainConfig

	// --- Read ---

	BlockNumber(ctx context.Context) (uint64, error)
	BlockWithTxs(ctx context.Context, number uint64) (*Block, error)
	TransactionByHash(ctx context.Context, h Hash) (*Transaction, error)
	// TransactionReceipt returns (nil, nil) while the transaction is unmined.
	TransactionReceipt(ctx context.Context, h Hash) (*Receipt, error)

	// GasPrice returns the node's suggested legacy gas price in gwei.
	GasPrice(ctx context.Context) (decimal.Decimal, error)
	// BaseFee returns the latest block base fee in gwei. Chains without
	// EIP-1559 support return zero.
	BaseFee(ctx context.Context) (decimal.Decimal, error)

	Balance(ctx context.Context, addr Address) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, token, addr Address) (decimal.Decimal, error)
	Allowance(ctx context.Context, token, owner, spender Address) (decimal.Decimal, error)

	// TransactionCount returns the pending nonce for an address.
	TransactionCount(ctx context.Context, addr Address) (uint64, error)

	// AmountsOut quotes a swap along path via the router.
	AmountsOut(ctx context.Context, amountIn decimal.Decimal, path []Address) ([]decimal.Decimal, error)
	// Pair returns the factory pair address for two tokens, or the zero
	// address when no pair exists.
	Pair(ctx context.Context, tokenA, tokenB Address) (Address, error)

	// TokenInfo fetches ERC-20 metadata plus explorer verification status.
	TokenInfo(ctx context.Context, token Address) (*TokenInfo, error)
	// TopHolders returns the top N holders of a token.
	TopHolders(ctx context.Context, token Address, limit int) ([]HolderInfo, error)

	// NativePriceUSD is the black-box oracle feed for the native token.
	NativePriceUSD(ctx context.Context) (decimal.Decimal, error)

	EstimateGas(ctx context.Context, req TxRequest) (uint64, error)

	// SubscribePendingTxs streams full pending transactions. The channel is
	// closed on subscription loss; callers reconnect with backoff.
	SubscribePendingTxs(ctx context.Context) (<-chan Transaction, error)

	// --- Write ---

	// SendTransaction signs and submits a transaction, returning its hash.
	SendTransaction(ctx context.Context, req TxRequest) (Hash, error)
	// ApproveToken submits an ERC-20 approve(spender, amount).
	ApproveToken(ctx context.Context, token, spender Address, amount decimal.Decimal) (Hash, error)

	Health(ctx context.Context) error
}

// PrivateRelay is the optional bundle-submission capability. Adapters that
// have no relay for their chain simply do not implement it; callers probe
// with a type assertion.
type PrivateRelay interface {
	// SendPrivateBundle submits an ordered bundle targeting a specific block.
	SendPrivateBundle(ctx context.Context, txs []TxRequest, targetBlock uint64) (Hash, error)
	// SimulateBundle dry-runs a bundle against the target block state.
	SimulateBundle(ctx context.Context, txs []TxRequest, targetBlock uint64) error
}

// RelayFor returns the adapter's private-relay capability, or nil when the
// chain has none.
func RelayFor(adapter ChainAdapter) PrivateRelay {
	if r, ok := adapter.(PrivateRelay); ok {
		return r
	}
	return nil
}
