package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Distributed cache — Redis tier with pub/sub invalidation
// ---------------------------------------------------------------------------

// DistributedConfig configures the Redis-backed tier.
type DistributedConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	// InvalidationChannel carries deleted keys between nodes so each local
	// tier can drop its copy.
	InvalidationChannel string `yaml:"invalidation_channel"`
}

// DefaultDistributedConfig returns development defaults.
func DefaultDistributedConfig() DistributedConfig {
	return DistributedConfig{
		Addr:                "localhost:6379",
		KeyPrefix:           "hornet:cache:",
		InvalidationChannel: "hornet:cache:invalidate",
	}
}

// Distributed layers a Redis tier behind a Local tier. Reads hit local
// first; writes go to both; deletes publish an invalidation so peer nodes
// drop their local copies too.
type Distributed struct {
	config DistributedConfig
	local  *Local
	rdb    *redis.Client

	cancel context.CancelFunc
}

// NewDistributed creates the two-tier cache and starts the invalidation
// subscriber.
func NewDistributed(config DistributedConfig, local *Local) *Distributed {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := &Distributed{
		config: config,
		local:  local,
		rdb:    rdb,
		cancel: cancel,
	}
	go d.invalidationLoop(ctx)
	return d
}

func (d *Distributed) redisKey(key string) string {
	return d.config.KeyPrefix + key
}

// Get checks the local tier, then Redis. A Redis hit is promoted into the
// local tier with the key's remaining TTL.
func (d *Distributed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if raw, ok, err := d.local.Get(ctx, key); err == nil && ok {
		return raw, true, nil
	}

	raw, err := d.rdb.Get(ctx, d.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if ttl, err := d.rdb.PTTL(ctx, d.redisKey(key)).Result(); err == nil && ttl > 0 {
		_ = d.local.Set(ctx, key, raw, ttl)
	}
	return raw, true, nil
}

// Set writes both tiers.
func (d *Distributed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := d.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return d.rdb.Set(ctx, d.redisKey(key), value, ttl).Err()
}

// Delete removes the key from both tiers and tells peer nodes to do the same.
func (d *Distributed) Delete(ctx context.Context, key string) error {
	_ = d.local.Delete(ctx, key)
	if err := d.rdb.Del(ctx, d.redisKey(key)).Err(); err != nil {
		return err
	}
	return d.rdb.Publish(ctx, d.config.InvalidationChannel, key).Err()
}

// Close stops the invalidation subscriber and closes the Redis client.
func (d *Distributed) Close() error {
	d.cancel()
	return d.rdb.Close()
}

func (d *Distributed) invalidationLoop(ctx context.Context) {
	sub := d.rdb.Subscribe(ctx, d.config.InvalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := d.local.Delete(ctx, msg.Payload); err != nil {
				log.Warn().Err(err).Str("key", msg.Payload).Msg("cache: local invalidation failed")
			}
		}
	}
}
