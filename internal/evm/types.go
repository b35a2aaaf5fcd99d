package evm

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address is a 20-byte EVM address as a lowercase 0x-prefixed hex string.
type Address string

// Hash is a 32-byte transaction or block hash as a 0x-prefixed hex string.
type Hash string

// NormalizeAddress lowercases an address so map lookups and comparisons are
// checksum-insensitive.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(s))
}

// IsValidAddress reports whether s looks like a 0x-prefixed 20-byte address.
func IsValidAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsZero reports whether the address is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || a == "0x0000000000000000000000000000000000000000"
}

// ---------------------------------------------------------------------------
// Transaction types
// ---------------------------------------------------------------------------

// Transaction is a chain transaction, pending or mined.
// BlockNumber is 0 while the transaction sits in the mempool.
type Transaction struct {
	Hash        Hash            `json:"hash"`
	From        Address         `json:"from"`
	To          Address         `json:"to"`
	ValueNative decimal.Decimal `json:"value_native"` // in native token units (ETH, BNB, ...)
	GasPrice    decimal.Decimal `json:"gas_price_gwei"`
	GasLimit    uint64          `json:"gas_limit"`
	Nonce       uint64          `json:"nonce"`
	Input       []byte          `json:"input"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	TxIndex     int             `json:"tx_index,omitempty"`
}

// Pending reports whether the transaction has not been mined yet.
func (t Transaction) Pending() bool { return t.BlockNumber == 0 }

// Receipt is the mined outcome of a transaction.
type Receipt struct {
	TxHash       Hash   `json:"tx_hash"`
	BlockNumber  uint64 `json:"block_number"`
	TxIndex      int    `json:"tx_index"`
	Success      bool   `json:"success"`
	GasUsed      uint64 `json:"gas_used"`
	RevertReason string `json:"revert_reason,omitempty"`
}

// Block is a mined block with its transactions.
type Block struct {
	Number      uint64          `json:"number"`
	BaseFeeGwei decimal.Decimal `json:"base_fee_gwei"`
	Timestamp   time.Time       `json:"ts"`
	Txs         []Transaction   `json:"txs"`
}

// TxRequest describes a transaction to be signed and submitted by the
// adapter. Either GasPriceGwei (legacy) or the PriorityFee/MaxFee pair
// (EIP-1559) is set, never both.
type TxRequest struct {
	From            Address         `json:"from"`
	To              Address         `json:"to"`
	ValueNative     decimal.Decimal `json:"value_native"`
	Input           []byte          `json:"input,omitempty"`
	GasLimit        uint64          `json:"gas_limit"`
	GasPriceGwei    decimal.Decimal `json:"gas_price_gwei,omitempty"`
	PriorityFeeGwei decimal.Decimal `json:"priority_fee_gwei,omitempty"`
	MaxFeeGwei      decimal.Decimal `json:"max_fee_gwei,omitempty"`
	Nonce           uint64          `json:"nonce"`
}

// EffectiveGasGwei returns the fee figure used for bump/replacement math:
// the legacy gas price, or the max fee for EIP-1559 requests.
func (r TxRequest) EffectiveGasGwei() decimal.Decimal {
	if r.GasPriceGwei.IsPositive() {
		return r.GasPriceGwei
	}
	return r.MaxFeeGwei
}

// ---------------------------------------------------------------------------
// Token metadata
// ---------------------------------------------------------------------------

// TokenInfo is on-chain metadata for an ERC-20 token.
type TokenInfo struct {
	Address     Address         `json:"address"`
	Symbol      string          `json:"symbol"`
	Decimals    uint8           `json:"decimals"`
	TotalSupply decimal.Decimal `json:"total_supply"`
	// Verified reports whether source code is published on the chain explorer.
	Verified bool `json:"verified"`
	// Bytecode selectors present in the deployed contract, used by the risk
	// analyzer to spot owner-privileged functions.
	Selectors []string `json:"selectors,omitempty"`
}

// HolderInfo describes a single token holder.
type HolderInfo struct {
	Address    Address         `json:"address"`
	Balance    decimal.Decimal `json:"balance"`
	Percentage float64         `json:"percentage"` // % of total supply
}
