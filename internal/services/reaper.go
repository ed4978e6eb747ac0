package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendwatch/internal/core"
	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
)

// StaleRunLedger is the part of the ledger the reaper needs.
type StaleRunLedger interface {
	Now() time.Time
	FindStale(ctx context.Context, threshold time.Time) ([]core.AnalysisRun, error)
	Fail(ctx context.Context, run *core.AnalysisRun, reason string) error
}

type ReapSummary struct {
	Threshold time.Time
	Found     int
	Reaped    int
	Failed    int
}

// Reaper fails analysis runs stuck in RUNNING so their slot can be
// claimed again.
type Reaper struct {
	ledger         StaleRunLedger
	staleThreshold time.Duration
	logger         *slog.Logger
}

func NewReaper(ledger StaleRunLedger, staleThreshold time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		ledger:         ledger,
		staleThreshold: staleThreshold,
		logger:         logger.With(log.FieldComponent, log.ComponentReaper),
	}
}

// ReapStale marks every run not updated within the stale threshold as
// FAILED. A run that cannot be marked is logged and counted; the sweep
// continues with the rest.
func (r *Reaper) ReapStale(ctx context.Context) (ReapSummary, error) {
	threshold := r.ledger.Now().Add(-r.staleThreshold)
	summary := ReapSummary{Threshold: threshold}

	stale, err := r.ledger.FindStale(ctx, threshold)
	if err != nil {
		return summary, fmt.Errorf("reap stale runs: %w", err)
	}
	summary.Found = len(stale)

	for i := range stale {
		run := &stale[i]
		reason := fmt.Sprintf("stale: no progress since %s (threshold %s)",
			run.UpdatedAt.UTC().Format(time.RFC3339), r.staleThreshold)

		if err := r.ledger.Fail(ctx, run, reason); err != nil {
			summary.Failed++
			metrics.StaleRunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			r.logger.ErrorContext(ctx, "Failed to reap stale analysis run",
				log.NewFields().WithRun(run).WithOperation(log.OpReap).WithError(err).ToSlice()...)
			continue
		}

		summary.Reaped++
		metrics.StaleRunsTotal.WithLabelValues(metrics.OutcomeReaped).Inc()
		r.logger.WarnContext(ctx, "Reaped stale analysis run",
			log.NewFields().WithRun(run).WithOperation(log.OpReap).ToSlice()...)
	}

	if summary.Found > 0 {
		r.logger.InfoContext(ctx, "Stale run sweep complete",
			"found", summary.Found,
			"reaped", summary.Reaped,
			"failed", summary.Failed)
	}
	return summary, nil
}
