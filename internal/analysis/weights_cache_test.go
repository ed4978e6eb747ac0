package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwatch/internal/core"
)

type countingWeights struct {
	calls int
	err   error
}

func (c *countingWeights) GetEffectiveWeights(ctx context.Context, userID string) ([]core.CategoryWeight, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return core.DefaultWeights(), nil
}

func TestCachedWeights_ServesRepeatReadsFromCache(t *testing.T) {
	inner := &countingWeights{}
	cw := NewCachedWeights(inner, 10, time.Hour)
	ctx := context.Background()

	first, err := cw.GetEffectiveWeights(ctx, "user-1")
	require.NoError(t, err)
	first[0].Weight = 0.99

	second, err := cw.GetEffectiveWeights(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 0.30, second[0].Weight, "callers cannot mutate the cached slice")

	assert.Equal(t, uint64(1), cw.Stats().Hits)
}

func TestCachedWeights_ResetForcesFreshRead(t *testing.T) {
	inner := &countingWeights{}
	cw := NewCachedWeights(inner, 10, time.Hour)
	ctx := context.Background()

	_, err := cw.GetEffectiveWeights(ctx, "user-1")
	require.NoError(t, err)
	cw.Reset()
	assert.Zero(t, cw.Stats().Size)

	_, err = cw.GetEffectiveWeights(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedWeights_ErrorsAreNotCached(t *testing.T) {
	inner := &countingWeights{err: errors.New("locked")}
	cw := NewCachedWeights(inner, 10, time.Hour)

	_, err := cw.GetEffectiveWeights(context.Background(), "user-1")
	assert.Error(t, err)

	inner.err = nil
	_, err = cw.GetEffectiveWeights(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
