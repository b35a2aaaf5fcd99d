package mempool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// MEV classifier — block-window heuristics for defensive avoidance
// ---------------------------------------------------------------------------

// MEVKind labels a recognised extraction pattern.
type MEVKind string

const (
	MEVSandwich MEVKind = "sandwich"
	MEVFrontrun MEVKind = "frontrun"
	MEVArb      MEVKind = "arbitrage"
)

const (
	mevCacheCapacity  = 1000
	mevCacheLowWater  = 800
	frontrunGasFactor = 1.2
	arbMinSwaps       = 3
)

// mevClassifier scores mined blocks for sandwich, front-run and arbitrage
// patterns. Identified hashes live in a bounded LRU so a block seen twice
// is not re-scored.
type mevClassifier struct {
	mu      sync.Mutex
	entries map[evm.Hash]*list.Element
	order   *list.List // front = most recent

	sandwiches atomic.Int64
	frontruns  atomic.Int64
	arbitrage  atomic.Int64
}

type mevEntry struct {
	hash evm.Hash
	kind MEVKind
}

func newMEVClassifier() *mevClassifier {
	return &mevClassifier{
		entries: make(map[evm.Hash]*list.Element),
		order:   list.New(),
	}
}

// lookup reports whether hash was classified, and as what.
func (c *mevClassifier) lookup(hash evm.Hash) (MEVKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[hash]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*mevEntry).kind, true
}

// classifyBlock runs all heuristics over the block's router swaps, in
// transaction order.
func (c *mevClassifier) classifyBlock(router evm.Address, block *evm.Block) {
	swaps := routerSwaps(router, block)
	if len(swaps) < 2 {
		return
	}

	// Heuristic: three consecutive same-selector swaps where the outer
	// sender brackets a different victim and outbids it on gas.
	for i := 0; i+2 < len(swaps); i++ {
		a, b, d := swaps[i], swaps[i+1], swaps[i+2]
		if a.selector != b.selector || b.selector != d.selector {
			continue
		}
		if a.sender != d.sender || a.sender == b.sender {
			continue
		}
		if b.gas.LessThan(decimal.Min(a.gas, d.gas)) {
			c.record(MEVSandwich, a.hash, b.hash, d.hash)
			c.sandwiches.Add(1)
		}
	}

	// Heuristic: two consecutive same-selector swaps from different
	// senders where the first substantially outbids the second.
	factor := decimal.NewFromFloat(frontrunGasFactor)
	for i := 0; i+1 < len(swaps); i++ {
		a, b := swaps[i], swaps[i+1]
		if a.selector != b.selector || a.sender == b.sender {
			continue
		}
		if a.gas.GreaterThan(b.gas.Mul(factor)) {
			c.record(MEVFrontrun, a.hash)
			c.frontruns.Add(1)
		}
	}

	// Heuristic: one sender cycling value-free swaps within one block.
	zeroBySender := make(map[evm.Address][]evm.Hash)
	for _, s := range swaps {
		if s.zeroValue {
			zeroBySender[s.sender] = append(zeroBySender[s.sender], s.hash)
		}
	}
	for sender, hashes := range zeroBySender {
		if len(hashes) >= arbMinSwaps {
			c.record(MEVArb, hashes...)
			c.arbitrage.Add(1)
			log.Debug().
				Str("sender", string(sender)).
				Int("swaps", len(hashes)).
				Uint64("block", block.Number).
				Msg("mempool: arbitrage pattern")
		}
	}
}

type blockSwap struct {
	hash      evm.Hash
	sender    evm.Address
	selector  string
	gas       decimal.Decimal
	zeroValue bool
}

func routerSwaps(router evm.Address, block *evm.Block) []blockSwap {
	out := make([]blockSwap, 0, 8)
	for _, tx := range block.Txs {
		if tx.To != router || !evm.IsSwapSelector(tx.Input) {
			continue
		}
		out = append(out, blockSwap{
			hash:      tx.Hash,
			sender:    tx.From,
			selector:  evm.Selector(tx.Input),
			gas:       tx.GasPrice,
			zeroValue: tx.ValueNative.IsZero(),
		})
	}
	return out
}

// record stores classified hashes, trimming to the low watermark once
// the cache overflows.
func (c *mevClassifier) record(kind MEVKind, hashes ...evm.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range hashes {
		if el, ok := c.entries[h]; ok {
			c.order.MoveToFront(el)
			continue
		}
		el := c.order.PushFront(&mevEntry{hash: h, kind: kind})
		c.entries[h] = el
	}
	if len(c.entries) > mevCacheCapacity {
		for len(c.entries) > mevCacheLowWater {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*mevEntry).hash)
		}
	}
}

func (c *mevClassifier) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
