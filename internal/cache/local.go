package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Local cache — in-process TTL + LRU
// ---------------------------------------------------------------------------

// LocalConfig configures the in-process cache tier.
type LocalConfig struct {
	// Capacity is the maximum number of entries; the least recently used
	// entry is evicted on overflow.
	Capacity int `yaml:"capacity"`
	// SweepInterval is how often the janitor removes expired entries.
	// Expired entries are invisible to readers regardless.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultLocalConfig returns production defaults.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Capacity:      10_000,
		SweepInterval: time.Minute,
	}
}

type localEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Local is a TTL+LRU byte cache. Safe for concurrent use.
type Local struct {
	config LocalConfig

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLocal creates a local cache tier and starts its sweep janitor.
func NewLocal(config LocalConfig) *Local {
	if config.Capacity <= 0 {
		config.Capacity = 10_000
	}
	c := &Local{
		config:  config,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		stopCh:  make(chan struct{}),
	}
	if config.SweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the value under key, or a miss once the entry has expired.
func (c *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	entry := el.Value.(*localEntry)
	if !time.Now().Before(entry.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	c.hits++
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores value under key. An active lease is never shortened: the entry
// keeps the later of its current and the requested expiry.
func (c *Local) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*localEntry)
		entry.value = cp
		if expiresAt.After(entry.expiresAt) || !time.Now().Before(entry.expiresAt) {
			entry.expiresAt = expiresAt
		}
		c.order.MoveToFront(el)
		return nil
	}

	if len(c.entries) >= c.config.Capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	el := c.order.PushFront(&localEntry{key: key, value: cp, expiresAt: expiresAt})
	c.entries[key] = el
	return nil
}

// Delete removes the entry under key.
func (c *Local) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Len returns the number of live entries, expired included until swept.
func (c *Local) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweep janitor.
func (c *Local) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Local) removeLocked(el *list.Element) {
	entry := el.Value.(*localEntry)
	c.order.Remove(el)
	delete(c.entries, entry.key)
}

func (c *Local) sweepLoop() {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Local) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if entry := el.Value.(*localEntry); !now.Before(entry.expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

func (c *Local) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
