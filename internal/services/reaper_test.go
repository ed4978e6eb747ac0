package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwatch/internal/core"
	"spendwatch/internal/ledger"
	"spendwatch/internal/storage/memory"
)

type stubStaleLedger struct {
	now      time.Time
	stale    []core.AnalysisRun
	findErr  error
	failErrs map[string]error
	failed   []string
}

func (l *stubStaleLedger) Now() time.Time { return l.now }

func (l *stubStaleLedger) FindStale(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error) {
	return l.stale, l.findErr
}

func (l *stubStaleLedger) Fail(ctx context.Context, run *core.AnalysisRun, reason string) error {
	if err := l.failErrs[run.ID]; err != nil {
		return err
	}
	l.failed = append(l.failed, run.ID)
	return nil
}

func TestReapStale_ContinuesPastFailures(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	stub := &stubStaleLedger{
		now: now,
		stale: []core.AnalysisRun{
			{ID: "run-1", Status: core.RunStatusRunning},
			{ID: "run-2", Status: core.RunStatusRunning},
			{ID: "run-3", Status: core.RunStatusRunning},
		},
		failErrs: map[string]error{"run-2": errors.New("database is locked")},
	}

	summary, err := NewReaper(stub, 2*time.Hour, nil).ReapStale(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now.Add(-2*time.Hour), summary.Threshold)
	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 2, summary.Reaped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"run-1", "run-3"}, stub.failed)
}

func TestReapStale_FindError(t *testing.T) {
	stub := &stubStaleLedger{now: time.Now(), findErr: errors.New("no such table")}

	_, err := NewReaper(stub, time.Hour, nil).ReapStale(context.Background())
	assert.ErrorContains(t, err, "no such table")
	assert.Empty(t, stub.failed)
}

func TestReapStale_FreesSlotForReclaim(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 2, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memory.New()
	store.SetClock(clock)
	l := ledger.New(store, ledger.WithClock(clock))

	run, err := l.StartOrSkip(ctx, "user-1", windowStart, windowEnd)
	require.NoError(t, err)
	require.NotNil(t, run)

	// Too fresh to reap.
	summary, err := NewReaper(l, 2*time.Hour, nil).ReapStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Found)

	now = now.Add(3 * time.Hour)
	summary, err = NewReaper(l, 2*time.Hour, nil).ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reaped)

	stored, err := store.GetRun(ctx, "user-1", windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "stale")

	again, err := l.StartOrSkip(ctx, "user-1", windowStart, windowEnd)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, run.ID, again.ID)
	assert.Equal(t, 2, again.AttemptCount)
}
