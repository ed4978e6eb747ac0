package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"spendwatch/internal/core"
	"spendwatch/internal/storage/memory"
)

var (
	start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newLedger(store Store, clock *fakeClock) *Ledger {
	var n atomic.Int64
	return New(store,
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("run-%d", n.Add(1)) }))
}

func TestStartOrSkip_ExclusiveUnderConcurrency(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 15, 2, 0, 0, 0, time.UTC)}
	l := newLedger(memory.New(), clock)

	var claimed atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			run, err := l.StartOrSkip(context.Background(), "user-1", start, end)
			if run != nil {
				claimed.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), claimed.Load())
}

func TestStartOrSkip_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 5, 15, 2, 0, 0, 0, time.UTC)}
	l := newLedger(memory.New(), clock)

	run, err := l.StartOrSkip(ctx, "user-1", start, end)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusRunning, run.Status)
	assert.Equal(t, 1, run.AttemptCount)

	require.NoError(t, l.Fail(ctx, run, "analysis exploded"))
	assert.Equal(t, core.RunStatusFailed, run.Status)

	retry, err := l.StartOrSkip(ctx, "user-1", start, end)
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, 2, retry.AttemptCount)

	require.NoError(t, l.Complete(ctx, retry))

	skipped, err := l.StartOrSkip(ctx, "user-1", start, end)
	require.NoError(t, err)
	assert.Nil(t, skipped)

	assert.ErrorIs(t, l.Complete(ctx, retry), core.ErrInvalidTransition)
}

func TestStartOrSkip_RejectsInvalidPeriod(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := newLedger(memory.New(), clock)

	_, err := l.StartOrSkip(context.Background(), "user-1", end, start)
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)

	_, err = l.StartOrSkip(context.Background(), "", start, end)
	assert.Error(t, err)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) ClaimRun(context.Context, core.AnalysisRun) (*core.AnalysisRun, error) {
	return nil, f.err
}

func TestStartOrSkip_PropagatesStoreError(t *testing.T) {
	boom := errors.New("store unavailable")
	l := newLedger(failingStore{Store: memory.New(), err: boom}, &fakeClock{t: time.Now()})

	run, err := l.StartOrSkip(context.Background(), "user-1", start, end)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, boom)
}

func TestFindStale_ThenReclaim(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 5, 15, 2, 0, 0, 0, time.UTC)}
	l := newLedger(memory.New(), clock)

	run, err := l.StartOrSkip(ctx, "user-1", start, end)
	require.NoError(t, err)
	require.NotNil(t, run)

	clock.Advance(3 * time.Hour)
	stale, err := l.FindStale(ctx, clock.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, l.Fail(ctx, &stale[0], "stale"))

	// The original worker's late completion must not resurrect the run.
	assert.ErrorIs(t, l.Complete(ctx, run), core.ErrRunNotRunning)

	again, err := l.StartOrSkip(ctx, "user-1", start, end)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.AttemptCount)
}
