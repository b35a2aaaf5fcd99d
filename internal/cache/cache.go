package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the key/value capability shared by the local and distributed
// tiers. Values are opaque bytes; SetJSON/GetJSON add serialisation on top.
//
// TTL semantics: readers observe a miss from the entry's expiry onward.
// Writers may extend an active lease but never shorten it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %q: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// GetJSON loads and unmarshals the value under key into dest. Returns false
// on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dest any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal cache value for %q: %w", key, err)
	}
	return true, nil
}
