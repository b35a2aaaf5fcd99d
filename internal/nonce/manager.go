package nonce

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hornet-trading/hornet/internal/errs"
	"github.com/hornet-trading/hornet/internal/evm"
)

// ---------------------------------------------------------------------------
// Nonce Manager — per-address monotonic nonce issuance
// ---------------------------------------------------------------------------

// Config configures the nonce manager.
type Config struct {
	// RefetchTTL bounds how stale the cached chain nonce may be before Next
	// re-syncs against the node.
	RefetchTTL time.Duration `yaml:"refetch_ttl"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{RefetchTTL: 30 * time.Second}
}

type record struct {
	counter   uint64
	fetchedAt time.Time
}

// Manager issues strictly increasing nonces per address. Submitters must call
// Reset on NonceTooLow / AlreadyKnown / ReplacementUnderpriced errors before
// retrying.
type Manager struct {
	config  Config
	adapter evm.ChainAdapter

	mu      sync.Mutex
	records map[evm.Address]*record

	issued int64
	resets int64
}

// NewManager creates a nonce manager backed by the given adapter.
func NewManager(config Config, adapter evm.ChainAdapter) *Manager {
	if config.RefetchTTL <= 0 {
		config.RefetchTTL = 30 * time.Second
	}
	return &Manager{
		config:  config,
		adapter: adapter,
		records: make(map[evm.Address]*record),
	}
}

// Next returns a nonce strictly greater than every nonce previously returned
// for addr since the last Reset. A stale record is re-synced against the
// chain first, taking the max of the chain value and the local counter so a
// refetch can never reissue a nonce. The chain fetch happens outside the
// lock; a slow node must not stall issuance for other addresses.
func (m *Manager) Next(ctx context.Context, addr evm.Address) (uint64, error) {
	m.mu.Lock()
	rec, ok := m.records[addr]
	if ok && time.Since(rec.fetchedAt) <= m.config.RefetchTTL {
		n := rec.counter
		rec.counter++
		m.issued++
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	chainNonce, err := m.adapter.TransactionCount(ctx, addr)
	if err != nil {
		return 0, errs.Wrap(errs.ChainUnavailable, err, "fetch nonce for %s", addr)
	}

	// Re-check under the lock: a concurrent refetch may have landed first.
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok = m.records[addr]
	if !ok {
		rec = &record{counter: chainNonce}
		m.records[addr] = rec
	} else if chainNonce > rec.counter {
		rec.counter = chainNonce
	}
	rec.fetchedAt = time.Now()

	n := rec.counter
	rec.counter++
	m.issued++
	return n, nil
}

// Reset discards the cached counter and rebases from the chain. Called by
// submitters after a nonce conflict.
func (m *Manager) Reset(ctx context.Context, addr evm.Address) error {
	chainNonce, err := m.adapter.TransactionCount(ctx, addr)
	if err != nil {
		return errs.Wrap(errs.ChainUnavailable, err, "reset nonce for %s", addr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[addr] = &record{counter: chainNonce, fetchedAt: time.Now()}
	m.resets++

	log.Debug().Str("addr", string(addr)).Uint64("nonce", chainNonce).Msg("nonce: reset from chain")
	return nil
}

// Update advances the cached counter when an external observation (a mined
// transaction, an RPC error payload) reveals a nonce at or above the cache.
func (m *Manager) Update(addr evm.Address, observed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[addr]
	if !ok {
		m.records[addr] = &record{counter: observed + 1, fetchedAt: time.Now()}
		return
	}
	if observed >= rec.counter {
		rec.counter = observed + 1
	}
}

// Stats is a snapshot of nonce manager counters.
type Stats struct {
	TrackedAddresses int   `json:"tracked_addresses"`
	Issued           int64 `json:"issued"`
	Resets           int64 `json:"resets"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TrackedAddresses: len(m.records),
		Issued:           m.issued,
		Resets:           m.resets,
	}
}
