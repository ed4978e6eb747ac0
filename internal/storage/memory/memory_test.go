package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwatch/internal/core"
)

var (
	start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
)

func claim(t *testing.T, s *Store, id, user string, at time.Time) *core.AnalysisRun {
	t.Helper()
	run, err := s.ClaimRun(context.Background(), core.AnalysisRun{
		ID: id, UserID: user, PeriodStart: start, PeriodEnd: end, CreatedAt: at, UpdatedAt: at,
	})
	require.NoError(t, err)
	return run
}

func TestStore_ClaimLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	run := claim(t, s, "r1", "u1", now)
	require.NotNil(t, run)
	assert.Nil(t, claim(t, s, "r2", "u1", now), "RUNNING slot must be skipped")

	require.NoError(t, run.MarkAsFailed("boom", now))
	require.NoError(t, s.SaveRun(ctx, run))

	again := claim(t, s, "r3", "u1", now)
	require.NotNil(t, again)
	assert.Equal(t, "r1", again.ID)
	assert.Equal(t, 2, again.AttemptCount)

	require.NoError(t, again.MarkAsCompleted(now))
	require.NoError(t, s.SaveRun(ctx, again))
	assert.Nil(t, claim(t, s, "r4", "u1", now), "COMPLETED slot must be skipped")

	assert.ErrorIs(t, s.SaveRun(ctx, again), core.ErrRunNotRunning)
}

func TestStore_FindStaleRuns(t *testing.T) {
	s := New()
	old := time.Now().Add(-3 * time.Hour)
	claim(t, s, "old", "u1", old)
	claim(t, s, "new", "u2", time.Now())

	stale, err := s.FindStaleRuns(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestStore_FindUsersPages(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.SaveUser(ctx, core.User{ID: id, Active: id != "b"}))
	}

	page, err := s.FindUsers(ctx, core.UserQuery{Take: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)

	page, err = s.FindUsers(ctx, core.UserQuery{Take: 2, Skip: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)

	page, err = s.FindUsers(ctx, core.UserQuery{Take: 2, Skip: 5})
	require.NoError(t, err)
	assert.Empty(t, page)

	active, err := s.FindUsers(ctx, core.UserQuery{Take: 10, Where: core.UserFilter{ActiveOnly: true}})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestStore_SpendByCategory(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.RecordTransaction(ctx, core.Transaction{UserID: "u1", Category: core.CategoryFood, Amount: decimal.NewFromInt(30), OccurredOn: start})
	require.NoError(t, err)
	_, err = s.RecordTransaction(ctx, core.Transaction{UserID: "u1", Category: core.CategoryFood, Amount: decimal.NewFromInt(20), OccurredOn: end.Add(5 * time.Hour)})
	require.NoError(t, err)
	_, err = s.RecordTransaction(ctx, core.Transaction{UserID: "u1", Category: core.CategoryFood, Amount: decimal.NewFromInt(99), OccurredOn: end.AddDate(0, 0, 1)})
	require.NoError(t, err)

	spend, err := s.SpendByCategory(ctx, "u1", start, end)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(spend[core.CategoryFood]))
}

func TestStore_NotificationDedupe(t *testing.T) {
	s := New()
	ctx := context.Background()
	n := core.Notification{UserID: "u1", DedupeKey: "k", Meta: map[string]string{"a": "1"}}

	first, created, err := s.CreateNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreateNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	first.Meta["a"] = "mutated"
	stored, err := s.FindNotificationByDedupeKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", stored.Meta["a"])

	require.NoError(t, s.MarkNotificationRead(ctx, first.ID))
	unread, err := s.ListNotifications(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
