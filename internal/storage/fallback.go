package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// FallbackStore reads from the primary and falls back to the secondary when the primary fails or
// has nothing; stale data is preferred over no data. Writes go to both, and only a primary
// failure fails the write.
type FallbackStore struct {
	primary   Store
	secondary Store
}

func NewFallbackStore(primary, secondary Store) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary}
}

func (f *FallbackStore) Name() string {
	return fmt.Sprintf("%s(fallback %s)", f.primary.Name(), f.secondary.Name())
}

func (f *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := f.primary.Get(ctx, key)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	log.Warn().Err(err).Str("key", key).Str("fallback", f.secondary.Name()).Msg("primary read failed, using fallback")
	raw, ferr := f.secondary.Get(ctx, key)
	if ferr != nil {
		if errors.Is(err, ErrNotFound) && errors.Is(ferr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(err, ferr)
	}
	return raw, nil
}

func (f *FallbackStore) Put(ctx context.Context, key string, value []byte) error {
	perr := f.primary.Put(ctx, key, value)
	if err := f.secondary.Put(ctx, key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Str("store", f.secondary.Name()).Msg("backup write failed")
	}
	return perr
}
