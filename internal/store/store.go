package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hornet-trading/hornet/internal/errs"
)

// ---------------------------------------------------------------------------
// State store — versioned JSON records for positions, orders and history
// ---------------------------------------------------------------------------

// envelope wraps every record with a monotonically increasing version.
type envelope struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Store persists trading state as JSON records. Writes are atomic per
// key: a write either lands with the next version or fails whole.
type Store interface {
	// Put writes value under key, bumping the record version.
	Put(ctx context.Context, key string, value any) error
	// Get unmarshals the record into out; false when absent.
	Get(ctx context.Context, key string, out any) (bool, error)
	// Delete removes the record. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// Keys lists keys under prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ---------------------------------------------------------------------------
// Redis implementation
// ---------------------------------------------------------------------------

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultRedisConfig returns development defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "hornet:state:",
	}
}

// Redis persists records in Redis. Version bumps run inside a WATCH
// transaction so concurrent writers cannot interleave.
type Redis struct {
	config RedisConfig
	rdb    *redis.Client
}

// NewRedis creates a Redis-backed store.
func NewRedis(config RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	log.Info().Str("addr", config.Addr).Str("prefix", config.KeyPrefix).Msg("store: redis connected")
	return &Redis{config: config, rdb: rdb}
}

func (s *Redis) key(k string) string { return s.config.KeyPrefix + k }

func (s *Redis) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(errs.Other, err, "store: marshal %s", key)
	}

	fullKey := s.key(key)
	txn := func(tx *redis.Tx) error {
		var version int64
		raw, err := tx.Get(ctx, fullKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var prev envelope
			if err := json.Unmarshal(raw, &prev); err == nil {
				version = prev.Version
			}
		}

		next, err := json.Marshal(envelope{
			Version:   version + 1,
			UpdatedAt: time.Now().UTC(),
			Data:      data,
		})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, next, 0)
			return nil
		})
		return err
	}

	if err := s.rdb.Watch(ctx, txn, fullKey); err != nil {
		return errs.Wrap(errs.Other, err, "store: put %s", key)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.Other, err, "store: get %s", key)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, errs.Wrap(errs.Other, err, "store: decode %s", key)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, errs.Wrap(errs.Other, err, "store: decode %s", key)
	}
	return true, nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, s.key(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), s.config.KeyPrefix))
	}
	return out, iter.Err()
}

// Close closes the Redis client.
func (s *Redis) Close() error { return s.rdb.Close() }

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// Mem is the in-process Store used in tests and when Redis is not
// configured. State does not survive a restart.
type Mem struct {
	mu      sync.RWMutex
	records map[string]envelope
}

// NewMem creates an in-memory store.
func NewMem() *Mem {
	return &Mem{records: make(map[string]envelope)}
}

func (s *Mem) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(errs.Other, err, "store: marshal %s", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.records[key]
	s.records[key] = envelope{
		Version:   prev.Version + 1,
		UpdatedAt: time.Now().UTC(),
		Data:      data,
	}
	return nil
}

func (s *Mem) Get(ctx context.Context, key string, out any) (bool, error) {
	s.mu.RLock()
	env, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, errs.Wrap(errs.Other, err, "store: decode %s", key)
	}
	return true, nil
}

func (s *Mem) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

func (s *Mem) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Version returns the current record version, 0 when absent.
func (s *Mem) Version(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[key].Version
}
