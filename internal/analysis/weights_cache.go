package analysis

import (
	"context"
	"time"

	"spendwatch/internal/cache"
	"spendwatch/internal/core"
)

// CachedWeights memoises effective weights per user within one run.
// Callers Reset it before each run so weights edited between runs are
// always read fresh.
type CachedWeights struct {
	inner WeightResolver
	cache *cache.LRUCache[[]core.CategoryWeight]
}

func NewCachedWeights(inner WeightResolver, maxUsers int, ttl time.Duration) *CachedWeights {
	return &CachedWeights{
		inner: inner,
		cache: cache.NewLRUCache[[]core.CategoryWeight](maxUsers, ttl),
	}
}

func (c *CachedWeights) GetEffectiveWeights(ctx context.Context, userID string) ([]core.CategoryWeight, error) {
	if ws, ok := c.cache.Get(userID); ok {
		return append([]core.CategoryWeight(nil), ws...), nil
	}
	ws, err := c.inner.GetEffectiveWeights(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(userID, append([]core.CategoryWeight(nil), ws...))
	return ws, nil
}

// Reset drops every cached entry.
func (c *CachedWeights) Reset() {
	c.cache.Purge()
}

func (c *CachedWeights) Stats() cache.Stats {
	return c.cache.Stats()
}
