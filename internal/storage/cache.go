package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/utils/redis"
)

const cacheKeyPrefix = "subnet-rankings:"

// CachedStore serves reads from Redis when possible and writes through to it.
// Redis failures are logged and bypassed; the backing store stays authoritative.
type CachedStore struct {
	next  Store
	cache redis.RedisInterface
	ttl   time.Duration
}

func NewCachedStore(next Store, cache redis.RedisInterface, ttl time.Duration) *CachedStore {
	return &CachedStore{next: next, cache: cache, ttl: ttl}
}

func (c *CachedStore) Name() string { return "redis+" + c.next.Name() }

func (c *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	cacheKey := cacheKeyPrefix + key
	if raw, ok, err := c.cache.Get(ctx, cacheKey); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis get failed, reading through")
	} else if ok {
		log.Trace().Str("key", key).Msg("cache hit")
		return raw, nil
	}

	raw, err := c.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, cacheKey, raw, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
	return raw, nil
}

func (c *CachedStore) Put(ctx context.Context, key string, value []byte) error {
	if err := c.next.Put(ctx, key, value); err != nil {
		// drop the cached copy so the next read goes to the store that failed
		if derr := c.cache.Del(ctx, cacheKeyPrefix+key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("redis del failed")
		}
		return err
	}
	if err := c.cache.Set(ctx, cacheKeyPrefix+key, value, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
	return nil
}
