// Package metrics provides Prometheus metrics for the analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spendwatch"

// Label values shared by callers
const (
	OutcomeClaimed   = "claimed"
	OutcomeSkipped   = "skipped"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
	OutcomeReaped    = "reaped"
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"

	SourceAI       = "ai"
	SourceFallback = "fallback"
)

var (
	// LedgerClaimsTotal tracks claim attempts by outcome
	LedgerClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "claims_total",
			Help:      "Analysis run claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	// UsersProcessedTotal tracks per-user orchestrator outcomes
	UsersProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "users_total",
			Help:      "Users processed by the batch orchestrator by outcome",
		},
		[]string{"outcome"},
	)

	// BatchDuration tracks full orchestrator runs
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "batch_duration_seconds",
			Help:      "Duration of full analysis batches in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// FlushedItemsTotal tracks items written out by buffered flushes
	FlushedItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "flushed_items_total",
			Help:      "Reviews persisted and email jobs enqueued by flushes",
		},
		[]string{"kind"},
	)

	// CategoryBreachesTotal tracks breached categories found by the engine
	CategoryBreachesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "category_breaches_total",
			Help:      "Category threshold breaches detected",
		},
		[]string{"category"},
	)

	// ReviewsGeneratedTotal tracks which path produced each review
	ReviewsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "generated_total",
			Help:      "Reviews generated by source",
		},
		[]string{"source", "reason"},
	)

	// ReviewGenerationDuration tracks time spent producing a review
	ReviewGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating a review in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"source"},
	)

	// NotificationsTotal tracks publish outcomes
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification publish attempts by outcome",
		},
		[]string{"type", "outcome"},
	)

	// StaleRunsTotal tracks reaper results
	StaleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "stale_runs_total",
			Help:      "Stale analysis runs handled by the reaper by outcome",
		},
		[]string{"outcome"},
	)

	// EmailPublishTotal tracks queue publish results
	EmailPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amqp",
			Name:      "email_publish_total",
			Help:      "Email job publish attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SchedulerRunsTotal tracks scheduled job executions
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled job executions by job and outcome",
		},
		[]string{"job", "outcome"},
	)
)
