package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/pkg/codec"
)

// AdviceCache stores generated advice bundles. A bundle depends only on the
// routine and the streak length, so users on the same day count share it.
type AdviceCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewAdviceCache creates a new AdviceCache. A non-positive ttl means TTLAdvice.
func NewAdviceCache(cache *Cache, ttl time.Duration) *AdviceCache {
	if ttl <= 0 {
		ttl = TTLAdvice
	}
	return &AdviceCache{cache: cache, ttl: ttl}
}

var _ coaching.Cache = (*AdviceCache)(nil)

// Get returns a cached bundle. A miss is reported as ok=false with no error.
// Entries that fail validation are treated as misses and dropped.
func (a *AdviceCache) Get(ctx context.Context, id routine.ID, days int) (coaching.Bundle, bool, error) {
	key := AdviceKey(id.String(), days)

	data, err := a.cache.GetBytes(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return coaching.Bundle{}, false, nil
	}
	if err != nil {
		return coaching.Bundle{}, false, fmt.Errorf("advice cache get: %w", err)
	}

	b, err := codec.Parse[coaching.Bundle](data)
	if err != nil {
		_ = a.cache.Delete(ctx, key)
		return coaching.Bundle{}, false, nil
	}

	return b, true, nil
}

// Set stores a bundle.
func (a *AdviceCache) Set(ctx context.Context, id routine.ID, days int, b coaching.Bundle) error {
	data, err := codec.Serialize(b)
	if err != nil {
		return fmt.Errorf("advice cache set: %w", err)
	}

	if err := a.cache.SetBytes(ctx, AdviceKey(id.String(), days), data, a.ttl); err != nil {
		return fmt.Errorf("advice cache set: %w", err)
	}
	return nil
}
