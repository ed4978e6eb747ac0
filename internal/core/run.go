package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// maxErrorLength bounds LastError so a pathological error string cannot bloat the ledger.
const maxErrorLength = 1000

type RunStatus string

// AnalysisRun is the ledger record for one (user, period) analysis.
type AnalysisRun struct {
	ID           string
	UserID       string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Status       RunStatus
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Key identifies the run's slot, e.g. "user-1:2024-01-01:2024-01-14".
func (r *AnalysisRun) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.UserID, FormatDate(r.PeriodStart), FormatDate(r.PeriodEnd))
}

// MarkAsCompleted moves a RUNNING run to COMPLETED. The change is in memory
// only; callers persist it through the ledger.
func (r *AnalysisRun) MarkAsCompleted(now time.Time) error {
	if r.Status != RunStatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RunStatusCompleted)
	}
	r.Status = RunStatusCompleted
	r.LastError = ""
	r.UpdatedAt = now.UTC()
	return nil
}

// MarkAsFailed moves a RUNNING run to FAILED, recording reason.
func (r *AnalysisRun) MarkAsFailed(reason string, now time.Time) error {
	if r.Status != RunStatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RunStatusFailed)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxErrorLength {
		reason = reason[:maxErrorLength]
	}
	r.Status = RunStatusFailed
	r.LastError = reason
	r.UpdatedAt = now.UTC()
	return nil
}
