package evm

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ChainConfig is the static description of one EVM network.
type ChainConfig struct {
	Name          string  `yaml:"name"`
	ChainID       uint64  `yaml:"chain_id"`
	RPCURL        string  `yaml:"rpc_url"`
	WSURL         string  `yaml:"ws_url"`
	NativeSymbol  string  `yaml:"native_symbol"`
	WrappedNative Address `yaml:"wrapped_native"`
	Router        Address `yaml:"router"`
	Factory       Address `yaml:"factory"`
	ExplorerURL   string  `yaml:"explorer_url"`

	BlockTimeMs          int             `yaml:"block_time_ms"`
	DefaultGasLimit      uint64          `yaml:"default_gas_limit"`
	DefaultGasPriceGwei  decimal.Decimal `yaml:"default_gas_price_gwei"`
	EIP1559              bool            `yaml:"eip1559"`
	MaxPriorityFeeGwei   decimal.Decimal `yaml:"max_priority_fee_gwei"`
	PrivateRelayURL      string          `yaml:"private_relay_url,omitempty"`
}

// BlockTime returns the expected block cadence.
func (c ChainConfig) BlockTime() time.Duration {
	if c.BlockTimeMs <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.BlockTimeMs) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Chain registry
// ---------------------------------------------------------------------------

// Registry holds the known chain configurations. It is an explicit value
// passed at construction; tests instantiate their own.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]ChainConfig
}

// NewRegistry creates an empty chain registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[string]ChainConfig)}
}

// Register adds or replaces a chain configuration.
func (r *Registry) Register(key string, cfg ChainConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[key] = cfg
}

// Chain returns the configuration for a chain key.
func (r *Registry) Chain(key string) (ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.chains[key]
	if !ok {
		return ChainConfig{}, fmt.Errorf("unknown chain %q", key)
	}
	return cfg, nil
}

// Keys returns the registered chain keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.chains))
	for k := range r.chains {
		keys = append(keys, k)
	}
	return keys
}

// PredefinedRegistry returns a registry seeded with the mainnets the bot
// ships support for.
func PredefinedRegistry() *Registry {
	r := NewRegistry()

	r.Register("ethereum", ChainConfig{
		Name:                "Ethereum",
		ChainID:             1,
		RPCURL:              "https://eth.llamarpc.com",
		WSURL:               "wss://eth.llamarpc.com",
		NativeSymbol:        "ETH",
		WrappedNative:       "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", // WETH
		Router:              "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", // Uniswap V2 Router
		Factory:             "0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f", // Uniswap V2 Factory
		ExplorerURL:         "https://etherscan.io",
		BlockTimeMs:         12_000,
		DefaultGasLimit:     500_000,
		DefaultGasPriceGwei: decimal.NewFromInt(20),
		EIP1559:             true,
		MaxPriorityFeeGwei:  decimal.NewFromInt(2),
		PrivateRelayURL:     "https://relay.flashbots.net",
	})

	r.Register("bsc", ChainConfig{
		Name:                "Binance Smart Chain",
		ChainID:             56,
		RPCURL:              "https://bsc-dataseed.binance.org",
		WSURL:               "wss://bsc-ws-node.nariox.org",
		NativeSymbol:        "BNB",
		WrappedNative:       "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", // WBNB
		Router:              "0x10ed43c718714eb63d5aa57b78b54704e256024e", // PancakeSwap V2 Router
		Factory:             "0xca143ce32fe78f1f7019d7d551a6402fc5350c73", // PancakeSwap V2 Factory
		ExplorerURL:         "https://bscscan.com",
		BlockTimeMs:         3_000,
		DefaultGasLimit:     500_000,
		DefaultGasPriceGwei: decimal.NewFromInt(5),
		EIP1559:             false,
	})

	r.Register("avalanche", ChainConfig{
		Name:                "Avalanche C-Chain",
		ChainID:             43114,
		RPCURL:              "https://api.avax.network/ext/bc/C/rpc",
		WSURL:               "wss://api.avax.network/ext/bc/C/ws",
		NativeSymbol:        "AVAX",
		WrappedNative:       "0xb31f66aa3c1e785363f0875a1b74e27b85fd66c7", // WAVAX
		Router:              "0x60ae616a2155ee3d9a68541ba4544862310933d4", // Trader Joe Router
		Factory:             "0x9ad6c38be94206ca50bb0d90783181662f0cfa10",
		ExplorerURL:         "https://snowtrace.io",
		BlockTimeMs:         2_000,
		DefaultGasLimit:     500_000,
		DefaultGasPriceGwei: decimal.NewFromInt(25),
		EIP1559:             true,
		MaxPriorityFeeGwei:  decimal.NewFromInt(2),
	})

	return r
}
