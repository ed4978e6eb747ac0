package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendwatch/internal/analysis"
	"spendwatch/internal/core"
	"spendwatch/internal/log"
	"spendwatch/internal/metrics"
	"spendwatch/internal/notify"
)

// UserDirectory pages through users.
type UserDirectory interface {
	Find(ctx context.Context, q core.UserQuery) ([]core.User, error)
}

// RunLedger claims and finishes analysis runs.
type RunLedger interface {
	StartOrSkip(ctx context.Context, userID string, periodStart, periodEnd time.Time) (*core.AnalysisRun, error)
	Complete(ctx context.Context, run *core.AnalysisRun) error
	Fail(ctx context.Context, run *core.AnalysisRun, reason string) error
}

type Analyzer interface {
	AnalyzePeriod(ctx context.Context, userID string, periodStart, periodEnd time.Time, opts analysis.Options) (core.AnalysisResult, error)
}

type ReviewGenerator interface {
	GenerateReview(ctx context.Context, result core.AnalysisResult) string
}

type BreachNotifier interface {
	NotifyCategoryThresholdBreach(ctx context.Context, in notify.BreachInput) (*core.Notification, error)
}

// ReviewStore persists reviews in bulk and returns how many were written.
type ReviewStore interface {
	CreateMany(ctx context.Context, reviews []core.ReviewInput) (int, error)
}

// EmailQueue hands review emails to the delivery system.
type EmailQueue interface {
	AddBulkJobs(ctx context.Context, jobs []core.EmailJob) error
}

// OrchestratorConfig holds the batch tuning knobs
type OrchestratorConfig struct {
	// BatchSize is the number of users fetched per page (default: 100)
	BatchSize int

	// ReviewBatchSize is the buffered review count that triggers a flush (default: 50)
	ReviewBatchSize int

	// MaxIterations caps the number of pages fetched in one run (default: 1000)
	MaxIterations int

	// ThresholdBuffer is the breach tolerance passed to every analysis (default: 0.05)
	ThresholdBuffer float64

	// ActiveOnly restricts the run to active users (default: true)
	ActiveOnly bool
}

// DefaultOrchestratorConfig returns sensible defaults
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		BatchSize:       100,
		ReviewBatchSize: 50,
		MaxIterations:   1000,
		ThresholdBuffer: 0.05,
		ActiveOnly:      true,
	}
}

// Summary reports the outcome of one batch run. TotalProcessed counts every
// user examined: skipped + completed + failed.
type Summary struct {
	PeriodStart       time.Time
	PeriodEnd         time.Time
	TotalProcessed    int
	TotalSkipped      int
	TotalCompleted    int
	TotalFailed       int
	Pages             int
	IterationLimitHit bool
	Duration          time.Duration
}

// Orchestrator runs the periodic analysis for every user.
type Orchestrator struct {
	users    UserDirectory
	ledger   RunLedger
	analyzer Analyzer
	reviews  ReviewGenerator
	notifier BreachNotifier
	store    ReviewStore
	emails   EmailQueue
	config   OrchestratorConfig
	logger   *slog.Logger
}

// Dependencies groups the collaborators of an Orchestrator. Notifier and
// Emails are optional.
type Dependencies struct {
	Users    UserDirectory
	Ledger   RunLedger
	Analyzer Analyzer
	Reviews  ReviewGenerator
	Notifier BreachNotifier
	Store    ReviewStore
	Emails   EmailQueue
	Logger   *slog.Logger
}

func NewOrchestrator(deps Dependencies, config OrchestratorConfig) (*Orchestrator, error) {
	if deps.Users == nil || deps.Ledger == nil || deps.Analyzer == nil || deps.Reviews == nil || deps.Store == nil {
		return nil, fmt.Errorf("orchestrator not properly initialized: users, ledger, analyzer, reviews and store are required")
	}
	defaults := DefaultOrchestratorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ReviewBatchSize <= 0 {
		config.ReviewBatchSize = defaults.ReviewBatchSize
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaults.MaxIterations
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		users:    deps.Users,
		ledger:   deps.Ledger,
		analyzer: deps.Analyzer,
		reviews:  deps.Reviews,
		notifier: deps.Notifier,
		store:    deps.Store,
		emails:   deps.Emails,
		config:   config,
		logger:   logger.With(log.FieldComponent, log.ComponentOrchestrator),
	}, nil
}

// batch buffers reviews and their email jobs between flushes.
type batch struct {
	reviews []core.ReviewInput
	emails  []core.EmailJob
}

// reset drops the buffers without reusing their arrays; flushed slices may
// still be referenced by the store or queue.
func (b *batch) reset() {
	b.reviews = nil
	b.emails = nil
}

// RunForAllUsers analyses [periodStart, periodEnd] for every user. Per-user
// failures are counted and never stop the run. A failed flush is returned
// together with the partial summary.
func (o *Orchestrator) RunForAllUsers(ctx context.Context, periodStart, periodEnd time.Time) (Summary, error) {
	started := time.Now()
	summary := Summary{
		PeriodStart: core.NormalizeDate(periodStart),
		PeriodEnd:   core.NormalizeDate(periodEnd),
	}
	if err := core.ValidatePeriod(periodStart, periodEnd); err != nil {
		return summary, fmt.Errorf("run analysis: %w", err)
	}

	o.logger.InfoContext(ctx, "Starting analysis batch",
		log.FieldPeriodStart, core.FormatDate(periodStart),
		log.FieldPeriodEnd, core.FormatDate(periodEnd),
		log.FieldBatchSize, o.config.BatchSize)

	defer func() {
		summary.Duration = time.Since(started)
		metrics.BatchDuration.Observe(summary.Duration.Seconds())
	}()

	buf := &batch{}
	skip := 0
	for {
		if summary.Pages >= o.config.MaxIterations {
			summary.IterationLimitHit = true
			o.logger.ErrorContext(ctx, "Iteration limit reached, stopping pagination",
				log.FieldIteration, summary.Pages,
				"max_iterations", o.config.MaxIterations,
				"users_seen", skip)
			break
		}
		summary.Pages++

		users, err := o.users.Find(ctx, core.UserQuery{
			Take:  o.config.BatchSize,
			Skip:  skip,
			Where: core.UserFilter{ActiveOnly: o.config.ActiveOnly},
		})
		if err != nil {
			err = fmt.Errorf("fetch users page %d: %w", summary.Pages, err)
			if flushErr := o.flush(ctx, buf); flushErr != nil {
				err = errors.Join(err, flushErr)
			}
			return summary, err
		}
		if len(users) == 0 {
			break
		}

		for _, user := range users {
			o.processUser(ctx, user, summary.PeriodStart, summary.PeriodEnd, buf, &summary)

			if len(buf.reviews) >= o.config.ReviewBatchSize {
				if err := o.flush(ctx, buf); err != nil {
					return summary, err
				}
			}
		}

		skip += len(users)
		if len(users) < o.config.BatchSize {
			break
		}
	}

	if err := o.flush(ctx, buf); err != nil {
		return summary, err
	}

	o.logger.InfoContext(ctx, "Analysis batch complete",
		log.FieldPeriodStart, core.FormatDate(periodStart),
		log.FieldPeriodEnd, core.FormatDate(periodEnd),
		"processed", summary.TotalProcessed,
		"completed", summary.TotalCompleted,
		"skipped", summary.TotalSkipped,
		"failed", summary.TotalFailed,
		"pages", summary.Pages,
		log.FieldDuration, time.Since(started).Milliseconds())

	return summary, nil
}

func (o *Orchestrator) processUser(ctx context.Context, user core.User, periodStart, periodEnd time.Time, buf *batch, summary *Summary) {
	summary.TotalProcessed++

	run, err := o.ledger.StartOrSkip(ctx, user.ID, periodStart, periodEnd)
	if err != nil {
		summary.TotalFailed++
		metrics.UsersProcessedTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		o.logger.ErrorContext(ctx, "Failed to claim analysis run",
			log.FieldUserID, user.ID,
			log.FieldOperation, log.OpClaim,
			log.FieldError, err)
		return
	}
	if run == nil {
		summary.TotalSkipped++
		metrics.UsersProcessedTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	reviewText, op, err := o.analyzeUser(ctx, run)
	if err != nil {
		summary.TotalFailed++
		metrics.UsersProcessedTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		o.logger.ErrorContext(ctx, "Analysis failed for user",
			log.NewFields().WithRun(run).WithOperation(op).WithError(err).ToSlice()...)

		if failErr := o.ledger.Fail(ctx, run, err.Error()); failErr != nil {
			// The reaper will recover the row if it is still RUNNING.
			o.logger.WarnContext(ctx, "Could not mark analysis run failed",
				log.FieldRunID, run.ID,
				log.FieldUserID, user.ID,
				log.FieldError, failErr)
		}
		return
	}

	summary.TotalCompleted++
	metrics.UsersProcessedTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()

	buf.reviews = append(buf.reviews, core.ReviewInput{
		UserID:      user.ID,
		Content:     reviewText,
		PeriodStart: run.PeriodStart,
		PeriodEnd:   run.PeriodEnd,
	})
	if user.Email != "" {
		buf.emails = append(buf.emails, core.EmailJob{
			UserID:      user.ID,
			Email:       user.Email,
			ReviewText:  reviewText,
			PeriodStart: run.PeriodStart,
			PeriodEnd:   run.PeriodEnd,
		})
	}
}

// analyzeUser runs analyse -> notify -> review -> complete for a claimed run.
// It returns the failing step's operation name alongside any error.
func (o *Orchestrator) analyzeUser(ctx context.Context, run *core.AnalysisRun) (string, string, error) {
	result, err := o.analyzer.AnalyzePeriod(ctx, run.UserID, run.PeriodStart, run.PeriodEnd, analysis.Options{
		ThresholdBuffer: o.config.ThresholdBuffer,
	})
	if err != nil {
		return "", log.OpAnalyze, err
	}

	if o.notifier != nil {
		for _, breach := range result.Breaches() {
			if _, err := o.notifier.NotifyCategoryThresholdBreach(ctx, notify.BreachInput{
				UserID:      run.UserID,
				Category:    breach.Category,
				Weight:      breach.Weight,
				ActualShare: breach.ActualShare,
				DeltaPct:    breach.DeltaPct,
			}); err != nil {
				return "", log.OpNotify, fmt.Errorf("notify %s breach: %w", breach.Category, err)
			}
		}
	}

	reviewText := o.reviews.GenerateReview(ctx, result)

	if err := o.ledger.Complete(ctx, run); err != nil {
		return "", log.OpComplete, fmt.Errorf("complete analysis run: %w", err)
	}

	return reviewText, "", nil
}

// flush persists buffered reviews, then enqueues their emails. Emails are
// never enqueued for a batch whose reviews failed to persist.
func (o *Orchestrator) flush(ctx context.Context, buf *batch) error {
	if len(buf.reviews) == 0 {
		return nil
	}

	written, err := o.store.CreateMany(ctx, buf.reviews)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist review batch",
			log.FieldOperation, log.OpFlush,
			"reviews", len(buf.reviews),
			log.FieldError, err)
		return fmt.Errorf("persist %d reviews: %w", len(buf.reviews), err)
	}
	metrics.FlushedItemsTotal.WithLabelValues("review").Add(float64(written))

	if len(buf.emails) > 0 {
		if o.emails == nil {
			o.logger.DebugContext(ctx, "No email queue configured, dropping email jobs", "count", len(buf.emails))
		} else {
			if err := o.emails.AddBulkJobs(ctx, buf.emails); err != nil {
				o.logger.ErrorContext(ctx, "Failed to enqueue review emails",
					log.FieldOperation, log.OpFlush,
					"emails", len(buf.emails),
					log.FieldError, err)
				return fmt.Errorf("enqueue %d email jobs: %w", len(buf.emails), err)
			}
			metrics.FlushedItemsTotal.WithLabelValues("email").Add(float64(len(buf.emails)))
		}
	}

	o.logger.DebugContext(ctx, "Flushed review batch",
		"reviews", written,
		"emails", len(buf.emails))
	buf.reset()
	return nil
}
