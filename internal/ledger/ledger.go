// Package ledger guarantees at most one in-flight or completed analysis per
// user and period. Exclusivity comes from the store's atomic claim.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spendwatch/internal/core"
	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
)

// Store is the persistence behind the ledger. ClaimRun must be atomic: it
// inserts a RUNNING row, re-claims a FAILED one with attempt_count+1, or
// returns (nil, nil) when the slot is RUNNING or COMPLETED.
type Store interface {
	ClaimRun(ctx context.Context, candidate core.AnalysisRun) (*core.AnalysisRun, error)
	SaveRun(ctx context.Context, run *core.AnalysisRun) error
	FindStaleRuns(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error)
}

type Ledger struct {
	store  Store
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(log.FieldComponent, log.ComponentLedger)
	return l
}

// Now returns the ledger's clock reading in UTC.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

// StartOrSkip claims the (user, period) slot. A nil run with a nil error
// means another worker owns or already finished the slot.
func (l *Ledger) StartOrSkip(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*core.AnalysisRun, error) {
	if userID == "" {
		return nil, fmt.Errorf("start analysis run: empty user id")
	}
	if err := core.ValidatePeriod(periodStart, periodEnd); err != nil {
		return nil, fmt.Errorf("start analysis run for user %s: %w", userID, err)
	}

	now := l.Now()
	run, err := l.store.ClaimRun(ctx, core.AnalysisRun{
		ID:          l.newID(),
		UserID:      userID,
		PeriodStart: core.NormalizeDate(periodStart),
		PeriodEnd:   core.NormalizeDate(periodEnd),
		Status:      core.RunStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		metrics.LedgerClaimsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("start analysis run for user %s: %w", userID, err)
	}
	if run == nil {
		metrics.LedgerClaimsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		l.logger.DebugContext(ctx, "Analysis slot already taken",
			log.FieldUserID, userID,
			log.FieldPeriodStart, core.FormatDate(periodStart),
			log.FieldPeriodEnd, core.FormatDate(periodEnd))
		return nil, nil
	}

	metrics.LedgerClaimsTotal.WithLabelValues(metrics.OutcomeClaimed).Inc()
	l.logger.DebugContext(ctx, "Analysis run claimed", log.NewFields().WithRun(run).ToSlice()...)
	return run, nil
}

// Complete marks run COMPLETED and persists it.
func (l *Ledger) Complete(ctx context.Context, run *core.AnalysisRun) error {
	if err := run.MarkAsCompleted(l.Now()); err != nil {
		return err
	}
	return l.Save(ctx, run)
}

// Fail marks run FAILED with reason and persists it.
func (l *Ledger) Fail(ctx context.Context, run *core.AnalysisRun, reason string) error {
	if err := run.MarkAsFailed(reason, l.Now()); err != nil {
		return err
	}
	return l.Save(ctx, run)
}

// Save persists run's current state. It fails with core.ErrRunNotRunning when
// the stored attempt is no longer RUNNING, e.g. after the reaper took it.
func (l *Ledger) Save(ctx context.Context, run *core.AnalysisRun) error {
	if run == nil {
		return fmt.Errorf("save analysis run: nil run")
	}
	if !run.Status.IsValid() {
		return fmt.Errorf("save analysis run %s: %w: unknown status %q", run.ID, core.ErrInvalidTransition, run.Status)
	}
	return l.store.SaveRun(ctx, run)
}

// FindStale returns RUNNING runs last updated before threshold.
func (l *Ledger) FindStale(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error) {
	runs, err := l.store.FindStaleRuns(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("find stale analysis runs: %w", err)
	}
	return runs, nil
}
