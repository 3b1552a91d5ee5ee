// Package storage reads and writes the forecaster's JSON documents (history, predictions,
// backtest results) in Cloudflare KV, a local data directory and an optional Redis cache.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/config"
	"github.com/tensorplex-labs/subnet-rankings/internal/utils/redis"
)

// ErrNotFound is returned by Get when a key holds no document.
var ErrNotFound = errors.New("document not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Name() string
}

// GetJSON decodes the document under key into out.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s from %s: %w", key, s.Name(), err)
	}
	return nil
}

// PutJSON encodes v with sorted map keys and stores it under key, so an unchanged value
// always produces the same document.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

// NewFromConfig builds the store chain: KV (when credentials are set) backed up to DATA_DIR,
// optionally fronted by the Redis cache. Without KV credentials the data directory is the only store.
// The returned close func releases the Redis connection, if any.
func NewFromConfig(cfg *config.AppConfig) (Store, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration cannot be nil")
	}

	files, err := NewFileStore(cfg.DataDir, cfg.BackupCompress)
	if err != nil {
		return nil, nil, err
	}

	var store Store = files
	if cfg.HasCredentials() {
		kv, err := NewKVStore(&cfg.CloudflareEnvConfig)
		if err != nil {
			return nil, nil, err
		}
		store = NewFallbackStore(kv, files)
	} else {
		log.Warn().Str("data_dir", cfg.DataDir).Msg("Cloudflare credentials missing, using local data directory only")
	}

	closeFn := func() {}
	if cfg.RedisEnabled {
		r, err := redis.NewRedis(&cfg.RedisEnvConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store = NewCachedStore(store, r, cfg.RedisCacheTTL)
		closeFn = r.Close
	}

	log.Info().Str("store", store.Name()).Msg("storage initialized")
	return store, closeFn, nil
}
