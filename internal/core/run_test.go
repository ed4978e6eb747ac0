package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newRunningRun() *AnalysisRun {
	return &AnalysisRun{
		ID:           "run-1",
		UserID:       "user-1",
		PeriodStart:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
		Status:       RunStatusRunning,
		AttemptCount: 1,
	}
}

func TestAnalysisRun_MarkAsCompleted(t *testing.T) {
	run := newRunningRun()
	now := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)

	if err := run.MarkAsCompleted(now); err != nil {
		t.Fatalf("MarkAsCompleted: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", run.Status)
	}
	if !run.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", run.UpdatedAt, now)
	}

	if err := run.MarkAsFailed("late", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal run must not transition, got %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Fatalf("status changed after rejected transition: %s", run.Status)
	}
}

func TestAnalysisRun_MarkAsFailed(t *testing.T) {
	run := newRunningRun()
	now := time.Now()

	if err := run.MarkAsFailed("  boom  ", now); err != nil {
		t.Fatalf("MarkAsFailed: %v", err)
	}
	if run.Status != RunStatusFailed || run.LastError != "boom" {
		t.Fatalf("unexpected run state: %+v", run)
	}
	if err := run.MarkAsCompleted(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("FAILED -> COMPLETED must be rejected, got %v", err)
	}
}

func TestAnalysisRun_MarkAsFailedTruncatesReason(t *testing.T) {
	run := newRunningRun()
	if err := run.MarkAsFailed(strings.Repeat("x", 5000), time.Now()); err != nil {
		t.Fatalf("MarkAsFailed: %v", err)
	}
	if len(run.LastError) != maxErrorLength {
		t.Fatalf("LastError length = %d, want %d", len(run.LastError), maxErrorLength)
	}
}

func TestAnalysisRun_Key(t *testing.T) {
	if got := newRunningRun().Key(); got != "user-1:2024-01-01:2024-01-14" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestRunStatus(t *testing.T) {
	if !RunStatusFailed.IsTerminal() || !RunStatusCompleted.IsTerminal() || RunStatusRunning.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
	if RunStatus("PAUSED").IsValid() {
		t.Fatal("unknown status reported valid")
	}
}
