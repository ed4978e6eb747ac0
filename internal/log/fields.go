package log

import (
	"time"

	"spendwatch/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldUserID      = "user_id"
	FieldRunID       = "run_id"
	FieldAttempt     = "attempt"
	FieldPeriodStart = "period_start"
	FieldPeriodEnd   = "period_end"
	FieldCategory    = "category"
	FieldDedupeKey   = "dedupe_key"
	FieldReviewPath  = "review_path"
	FieldBatchSize   = "batch_size"
	FieldIteration   = "iteration"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentLedger       = "ledger"
	ComponentAnalysis     = "analysis"
	ComponentReview       = "review"
	ComponentNotify       = "notify"
	ComponentOrchestrator = "orchestrator"
	ComponentReaper       = "reaper"
	ComponentScheduler    = "scheduler"
)

// Operations defines standard operation names
const (
	OpClaim    = "claim"
	OpAnalyze  = "analyze"
	OpReview   = "review"
	OpNotify   = "notify"
	OpComplete = "complete"
	OpFlush    = "flush"
	OpReap     = "reap"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

func (f LogFields) WithPeriod(start, end time.Time) LogFields {
	f[FieldPeriodStart] = core.FormatDate(start)
	f[FieldPeriodEnd] = core.FormatDate(end)
	return f
}

// WithRun adds the ledger identity of a run
func (f LogFields) WithRun(run *core.AnalysisRun) LogFields {
	if run == nil {
		return f
	}
	f[FieldRunID] = run.ID
	f[FieldUserID] = run.UserID
	f[FieldAttempt] = run.AttemptCount
	return f.WithPeriod(run.PeriodStart, run.PeriodEnd)
}

func (f LogFields) WithDuration(d time.Duration) LogFields {
	f[FieldDuration] = d.Milliseconds()
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
